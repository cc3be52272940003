package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrUnknownSelectedPerspective = goerr.New("selected perspective is not in perspectives")
	ErrEmptyUserID                = goerr.New("user id is empty")
)

type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

type UserID string

// ConversationRecord is the persisted form of one question and everything that
// followed it: generated perspectives, an optional deep-dive conversation with
// one of them and the clarifying context gathered beforehand.
type ConversationRecord struct {
	ID                  RecordID      `json:"id" firestore:"id"`
	UserID              UserID        `json:"userId" firestore:"user_id"`
	Question            string        `json:"question" firestore:"question"`
	SelectedPerspective *string       `json:"selectedPerspective" firestore:"selected_perspective"`
	Perspectives        []Perspective `json:"perspectives" firestore:"perspectives"`
	Conversation        []Message     `json:"conversation" firestore:"conversation"`
	Context             UserContext   `json:"context" firestore:"context"`
	CreatedAt           time.Time     `json:"createdAt" firestore:"created_at"`
	UpdatedAt           time.Time     `json:"updatedAt" firestore:"updated_at"`
}

// Validate checks record invariants
func (r *ConversationRecord) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.SelectedPerspective != nil {
		found := false
		for _, p := range r.Perspectives {
			if p.Name == *r.SelectedPerspective {
				found = true
				break
			}
		}
		if !found {
			return goerr.Wrap(ErrUnknownSelectedPerspective, "invalid record",
				goerr.V("selected", *r.SelectedPerspective),
				goerr.V("record_id", r.ID))
		}
	}
	return nil
}

// Selected returns the selected perspective name or "" when none
func (r *ConversationRecord) Selected() string {
	if r.SelectedPerspective == nil {
		return ""
	}
	return *r.SelectedPerspective
}

// Apply merges a partial update into the record. Context entries are merged
// rather than replaced.
func (r *ConversationRecord) Apply(update RecordUpdate, now time.Time) {
	if update.ClearSelection {
		r.SelectedPerspective = nil
	} else if update.SelectedPerspective != nil {
		name := *update.SelectedPerspective
		r.SelectedPerspective = &name
	}
	if update.Conversation != nil {
		r.Conversation = CloneMessages(update.Conversation)
	}
	if update.Context != nil {
		r.Context = r.Context.Merge(update.Context)
	}
	r.UpdatedAt = now
}

// Clone returns a deep copy
func (r *ConversationRecord) Clone() *ConversationRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.SelectedPerspective != nil {
		name := *r.SelectedPerspective
		out.SelectedPerspective = &name
	}
	out.Perspectives = append([]Perspective(nil), r.Perspectives...)
	out.Conversation = CloneMessages(r.Conversation)
	out.Context = r.Context.Clone()
	return &out
}

// RecordUpdate is a partial update of a ConversationRecord. Nil fields are left
// untouched.
type RecordUpdate struct {
	SelectedPerspective *string
	ClearSelection      bool
	Conversation        []Message
	Context             UserContext
}
