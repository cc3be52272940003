package conversation

import (
	"context"

	"github.com/romirm/advice-app/pkg/model"
)

// PerspectiveCard is a perspective decorated for display
type PerspectiveCard struct {
	Name   string `json:"name"`
	Advice string `json:"advice"`
	Color  string `json:"color"`
	Trait  string `json:"trait"`
}

type GatheringView struct {
	Transcript      []model.Message `json:"transcript"`
	CurrentQuestion string          `json:"currentQuestion"`
	Index           int             `json:"index"`
	Total           int             `json:"total"`
}

// View is an immutable snapshot of a conversation for presentation
type View struct {
	Mode         Mode              `json:"mode"`
	Busy         bool              `json:"busy"`
	Question     string            `json:"question,omitempty"`
	Context      model.UserContext `json:"context,omitempty"`
	Gathering    *GatheringView    `json:"gathering,omitempty"`
	Perspectives []PerspectiveCard `json:"perspectives,omitempty"`
	Selected     string            `json:"selectedPerspective,omitempty"`
	Conversation []model.Message   `json:"conversation,omitempty"`
	RecordID     model.RecordID    `json:"recordId,omitempty"`
	Saved        bool              `json:"saved"`
	Error        string            `json:"error,omitempty"`
}

// View returns a snapshot of the current state
func (c *Controller) View(ctx context.Context) *View {
	c.mu.Lock()
	s := c.st.clone()
	busy := c.busy
	c.mu.Unlock()

	v := &View{
		Mode:         s.mode,
		Busy:         busy,
		Question:     s.question,
		Context:      s.context,
		Selected:     s.selected,
		Conversation: s.deepDive,
		RecordID:     s.recordID,
		Saved:        s.saved,
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}

	if s.mode == ModeGathering {
		v.Gathering = &GatheringView{
			Transcript:      s.gathering,
			CurrentQuestion: s.currentFollowUp(),
			Index:           s.cursor,
			Total:           len(s.followUps),
		}
	}

	if s.advice != nil {
		for _, p := range s.advice.Perspectives {
			trait := model.DefaultTrait
			if c.decorator != nil {
				trait = c.decorator.Trait(ctx, p.Name)
			}
			v.Perspectives = append(v.Perspectives, PerspectiveCard{
				Name:   p.Name,
				Advice: p.Advice,
				Color:  trait.Color,
				Trait:  trait.Trait,
			})
		}
	}

	return v
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.mode
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}
