package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

// DefaultRationale introduces follow-up questions when the model gave no reason
const DefaultRationale = "I need a bit more information before I can give you good advice."

func rationale(a *model.InfoAssessment) string {
	if r := strings.TrimSpace(a.Reasoning); r != "" {
		return r
	}
	return DefaultRationale
}

func seedGathering(question, rationale, first string) []model.Message {
	return []model.Message{
		model.UserMessage(question),
		model.AssistantMessage(rationale),
		model.AssistantMessage(first),
	}
}

// SubmitQuestion starts a conversation. Depending on the assessment it either
// generates advice right away or enters the gathering mode.
func (c *Controller) SubmitQuestion(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	s, err := c.begin(func(s *state) error {
		if err := requireMode(ModeMulti, "cannot submit question")(s); err != nil {
			return err
		}
		if s.advice != nil {
			return goerr.Wrap(ErrAdviceExists, "reset before asking a new question")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.question = text
	s.context = nil
	s.clearGathering()
	s.lastErr = nil

	if !c.policy.ShouldForceProceed(s.context.Len()) {
		assessment := c.assess(ctx, s)
		if !assessment.HasEnoughInfo && len(assessment.FollowUpQuestions) > 0 {
			// context never grows past the hard cap
			questions := assessment.FollowUpQuestions[:min(len(assessment.FollowUpQuestions), c.policy.HardCap)]
			s.mode = ModeGathering
			s.followUps = append([]string(nil), questions...)
			s.originalFollowUps = append([]string(nil), questions...)
			s.originalRationale = rationale(assessment)
			s.cursor = 0
			s.gathering = seedGathering(s.question, s.originalRationale, s.followUps[0])
			c.commit(s)
			return nil
		}
	}

	return c.generate(ctx, s)
}

// AnswerFollowUp records the answer to the current follow-up question and
// moves to the next one, asks a new one or generates advice.
func (c *Controller) AnswerFollowUp(ctx context.Context, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrEmptyInput
	}

	s, err := c.begin(requireMode(ModeGathering, "cannot answer follow-up"))
	if err != nil {
		return err
	}

	s.context = s.context.Set(s.currentFollowUp(), answer)
	s.gathering = append(s.gathering, model.UserMessage(answer))

	if s.cursor+1 < len(s.followUps) {
		s.cursor++
		s.gathering = append(s.gathering, model.AssistantMessage(s.followUps[s.cursor]))
		c.commit(s)
		return nil
	}

	if c.policy.ShouldForceProceed(s.context.Len()) {
		return c.generateKeepingAnswers(ctx, s)
	}

	assessment := c.assess(ctx, s)
	if assessment.HasEnoughInfo || c.policy.SoftCapReached(s.context.Len()) {
		return c.generateKeepingAnswers(ctx, s)
	}

	next, ok := firstUnanswered(assessment.FollowUpQuestions, s.context)
	if !ok {
		return c.generateKeepingAnswers(ctx, s)
	}

	s.followUps = []string{next}
	s.cursor = 0
	s.gathering = append(s.gathering,
		model.AssistantMessage(rationale(assessment)),
		model.AssistantMessage(next),
	)
	c.commit(s)
	return nil
}

// assess asks whether more information is needed. Any failure resolves to
// enough info so the conversation always moves forward.
func (c *Controller) assess(ctx context.Context, s *state) *model.InfoAssessment {
	assessment, err := c.gateway.AssessInformationNeeds(ctx, s.question, s.context)
	if err != nil {
		logging.From(ctx).Warn("assessment failed, generating advice", "error", err)
		return model.EnoughInfo(model.FallbackReasoning)
	}
	if assessment == nil {
		return model.EnoughInfo(model.FallbackReasoning)
	}
	assessment.Normalize()
	return assessment
}

func firstUnanswered(questions []string, uc model.UserContext) (string, bool) {
	for _, q := range questions {
		if _, answered := uc.Get(q); !answered {
			return q, true
		}
	}
	return "", false
}

// SkipGathering generates advice with whatever context has been gathered. It
// is a no-op once advice for the question exists.
func (c *Controller) SkipGathering(ctx context.Context) error {
	s, err := c.begin(func(s *state) error {
		if s.mode == ModeMulti && s.advice != nil {
			return errNoop
		}
		return requireMode(ModeGathering, "cannot skip gathering")(s)
	})
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}

	return c.generate(ctx, s)
}

// RestartGathering discards the answers so far and asks the original
// follow-up questions again from the first one.
func (c *Controller) RestartGathering() error {
	return c.update(func(s *state) error {
		if err := requireMode(ModeGathering, "cannot restart gathering")(s); err != nil {
			return err
		}
		if len(s.originalFollowUps) == 0 {
			return goerr.Wrap(ErrInvalidMode, "no follow-up questions to restart")
		}

		s.context = nil
		s.followUps = append([]string(nil), s.originalFollowUps...)
		s.cursor = 0
		s.gathering = seedGathering(s.question, s.originalRationale, s.followUps[0])
		s.lastErr = nil
		return nil
	})
}

// generate produces advice for the working state and commits it in multi mode.
// On failure the working state is dropped and the error is kept for retry.
func (c *Controller) generate(ctx context.Context, s *state) error {
	if err := c.advise(ctx, s); err != nil {
		c.abort(err)
		return err
	}
	return nil
}

// generateKeepingAnswers is generate for the answer path: on failure the
// answer just recorded stays in the context and transcript, so a retry through
// SkipGathering or a new answer builds on it.
func (c *Controller) generateKeepingAnswers(ctx context.Context, s *state) error {
	if err := c.advise(ctx, s); err != nil {
		s.lastErr = err
		c.commit(s)
		return err
	}
	return nil
}

// advise calls the gateway and commits the result. On failure it leaves the
// controller busy and the caller decides what state to keep.
func (c *Controller) advise(ctx context.Context, s *state) error {
	result, err := c.gateway.GetAdvice(ctx, s.question, s.context)
	if err != nil {
		logging.From(ctx).Error("failed to generate advice", "error", err, "question", s.question)
		if !errors.Is(err, model.ErrGenerationFailed) {
			err = goerr.Wrap(model.ErrGenerationFailed, "failed to generate advice", goerr.V("cause", err))
		}
		return err
	}

	s.advice = result
	s.mode = ModeMulti
	s.clearGathering()
	s.clearDeepDive()
	s.lastErr = nil

	c.createRecord(ctx, s)
	c.commit(s)
	return nil
}
