package conversation

import "github.com/romirm/advice-app/pkg/model"

type Mode string

const (
	// ModeMulti is the initial mode: asking the question or browsing perspectives
	ModeMulti Mode = "multi"
	// ModeGathering is the clarifying-question dialogue
	ModeGathering Mode = "gathering"
	// ModeSingle is a deep-dive conversation with one perspective
	ModeSingle Mode = "single"
)

type state struct {
	mode     Mode
	question string
	context  model.UserContext

	// gathering
	followUps         []string
	cursor            int
	originalFollowUps []string
	originalRationale string
	gathering         []model.Message

	// deep-dive
	selected string
	deepDive []model.Message

	advice   *model.AdviceResult
	recordID model.RecordID
	saved    bool
	lastErr  error
}

func initialState() state {
	return state{mode: ModeMulti}
}

func (s *state) clone() *state {
	out := *s
	out.context = s.context.Clone()
	out.followUps = append([]string(nil), s.followUps...)
	out.originalFollowUps = append([]string(nil), s.originalFollowUps...)
	out.gathering = model.CloneMessages(s.gathering)
	out.deepDive = model.CloneMessages(s.deepDive)
	out.advice = s.advice.Clone()
	return &out
}

func (s *state) clearGathering() {
	s.followUps = nil
	s.cursor = 0
	s.originalFollowUps = nil
	s.originalRationale = ""
	s.gathering = nil
}

func (s *state) clearDeepDive() {
	s.selected = ""
	s.deepDive = nil
}

func (s *state) currentFollowUp() string {
	if s.cursor < 0 || s.cursor >= len(s.followUps) {
		return ""
	}
	return s.followUps[s.cursor]
}
