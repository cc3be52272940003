package history

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
)

var ErrForbidden = goerr.New("record belongs to another user")

// List returns the user's past conversations, most recent first
func List(
	ctx context.Context,
	repo repository.Repository,
	userID model.UserID,
	limit int,
) ([]*model.ConversationRecord, error) {
	if userID == "" {
		return nil, model.ErrEmptyUserID
	}

	records, err := repo.ListRecordsByUser(ctx, userID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list history", goerr.V("user_id", userID))
	}
	return records, nil
}

// Get returns one conversation owned by userID
func Get(
	ctx context.Context,
	repo repository.Repository,
	userID model.UserID,
	id model.RecordID,
) (*model.ConversationRecord, error) {
	if userID == "" {
		return nil, model.ErrEmptyUserID
	}

	record, err := repo.GetRecord(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history", goerr.V("record_id", id))
	}
	if record.UserID != userID {
		return nil, goerr.Wrap(ErrForbidden, "failed to get history",
			goerr.V("record_id", id),
			goerr.V("user_id", userID))
	}
	return record, nil
}
