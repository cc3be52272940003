package repository

import (
	"context"
	"time"

	"github.com/romirm/advice-app/pkg/model"
)

// MaxRecordsPerUser is the default number of conversation records retained per
// user. Creating a record beyond it evicts the oldest ones.
const MaxRecordsPerUser = 20

// Repository defines the interface for conversation history persistence
type Repository interface {
	// CreateRecord stores a new record and returns its ID. An ID is assigned
	// when the record has none.
	CreateRecord(ctx context.Context, record *model.ConversationRecord) (model.RecordID, error)

	// UpdateRecord applies a partial update. It returns model.ErrRecordNotFound
	// for an unknown ID.
	UpdateRecord(ctx context.Context, id model.RecordID, update model.RecordUpdate) error

	// GetRecord retrieves a record by ID
	GetRecord(ctx context.Context, id model.RecordID) (*model.ConversationRecord, error)

	// ListRecordsByUser returns the user's records, most recent first. A
	// non-positive limit returns every retained record.
	ListRecordsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.ConversationRecord, error)
}

type options struct {
	maxPerUser int
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		maxPerUser: MaxRecordsPerUser,
		now:        time.Now,
	}
}

type Option func(*options)

// WithMaxRecordsPerUser overrides the retention limit
func WithMaxRecordsPerUser(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPerUser = n
		}
	}
}

// WithClock replaces the time source used for created_at and updated_at
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// prepare validates a new record and fills ID and timestamps
func (o options) prepare(record *model.ConversationRecord) (*model.ConversationRecord, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	rec := record.Clone()
	if rec.ID == "" {
		rec.ID = model.NewRecordID()
	}
	now := o.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec, nil
}
