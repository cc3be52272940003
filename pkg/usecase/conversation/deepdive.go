package conversation

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

func seedDeepDive(question string, p model.Perspective) []model.Message {
	return []model.Message{
		model.UserMessage(question),
		model.AssistantMessage(p.Advice),
	}
}

// SelectPerspective starts a deep-dive with the named perspective
func (c *Controller) SelectPerspective(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyInput
	}

	var perspective model.Perspective
	s, err := c.begin(func(s *state) error {
		if err := requireMode(ModeMulti, "cannot select perspective")(s); err != nil {
			return err
		}
		if s.advice == nil {
			return goerr.Wrap(ErrInvalidMode, "no advice to select from")
		}
		p, ok := s.advice.Find(name)
		if !ok {
			return goerr.Wrap(ErrUnknownPerspective, "cannot select perspective",
				goerr.V("name", name),
				goerr.V("available", s.advice.Names()))
		}
		perspective = p
		return nil
	})
	if err != nil {
		return err
	}

	s.mode = ModeSingle
	s.selected = perspective.Name
	s.deepDive = seedDeepDive(s.question, perspective)
	s.lastErr = nil

	c.saveDeepDive(ctx, s)
	c.commit(s)
	return nil
}

// SendInSingle sends a message to the selected perspective and appends its
// reply. A failed reply is replaced by model.ContinuationPlaceholder.
func (c *Controller) SendInSingle(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyInput
	}

	s, err := c.begin(requireMode(ModeSingle, "cannot send message"))
	if err != nil {
		return err
	}

	history := model.CloneMessages(s.deepDive)
	s.deepDive = append(s.deepDive, model.UserMessage(message))

	reply, err := c.gateway.ContinueAdvice(ctx, s.selected, history, message)
	if err != nil || strings.TrimSpace(reply) == "" {
		logging.From(ctx).Warn("continuation failed", "error", err, "perspective", s.selected)
		reply = model.ContinuationPlaceholder
	}
	s.deepDive = append(s.deepDive, model.AssistantMessage(reply))

	c.saveDeepDive(ctx, s)
	c.commit(s)
	return nil
}

// GoBack leaves the deep-dive. The perspectives stay available.
func (c *Controller) GoBack() error {
	return c.update(func(s *state) error {
		if err := requireMode(ModeSingle, "cannot go back")(s); err != nil {
			return err
		}
		s.clearDeepDive()
		s.mode = ModeMulti
		return nil
	})
}
