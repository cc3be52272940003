package conversation

import (
	"context"

	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

// Persistence failures are logged and never returned; the in-memory state
// stays authoritative for the session.

func (c *Controller) newRecord(s *state) *model.ConversationRecord {
	rec := &model.ConversationRecord{
		UserID:       c.userID,
		Question:     s.question,
		Conversation: model.CloneMessages(s.deepDive),
		Context:      s.context.Clone(),
	}
	if s.advice != nil {
		rec.Perspectives = append([]model.Perspective(nil), s.advice.Perspectives...)
	}
	if s.selected != "" {
		name := s.selected
		rec.SelectedPerspective = &name
	}
	return rec
}

// createRecord stores a new record for the working state
func (c *Controller) createRecord(ctx context.Context, s *state) {
	s.saved = false
	if c.repo == nil {
		return
	}

	id, err := c.repo.CreateRecord(ctx, c.newRecord(s))
	if err != nil {
		logging.From(ctx).Error("failed to save conversation", "error", err, "user_id", c.userID)
		s.recordID = ""
		return
	}
	s.recordID = id
	s.saved = true
}

// saveDeepDive writes the selection and transcript onto the record, creating
// it when the conversation has none yet.
func (c *Controller) saveDeepDive(ctx context.Context, s *state) {
	if s.recordID == "" {
		c.createRecord(ctx, s)
		return
	}

	s.saved = false
	if c.repo == nil {
		return
	}

	name := s.selected
	update := model.RecordUpdate{
		SelectedPerspective: &name,
		Conversation:        model.CloneMessages(s.deepDive),
		Context:             s.context.Clone(),
	}
	if err := c.repo.UpdateRecord(ctx, s.recordID, update); err != nil {
		logging.From(ctx).Error("failed to update conversation", "error", err, "record_id", s.recordID)
		return
	}
	s.saved = true
}
