package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/adapter"
	"github.com/romirm/advice-app/pkg/model"
)

// ReadArchive loads the records of a JSON Lines archive written by Export.
// Every record must be valid and owned by userID.
func ReadArchive(
	ctx context.Context,
	storage adapter.Storage,
	userID model.UserID,
	key string,
) ([]*model.ConversationRecord, error) {
	if userID == "" {
		return nil, model.ErrEmptyUserID
	}

	r, err := storage.Get(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open archive", goerr.V("key", key))
	}
	defer r.Close()

	var records []*model.ConversationRecord
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var rec model.ConversationRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, goerr.Wrap(err, "failed to decode archive", goerr.V("key", key), goerr.V("line", line))
		}
		if err := rec.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid record in archive", goerr.V("key", key), goerr.V("line", line))
		}
		if rec.UserID != userID {
			return nil, goerr.Wrap(ErrForbidden, "failed to read archive",
				goerr.V("key", key),
				goerr.V("record_id", rec.ID),
				goerr.V("user_id", userID))
		}
		records = append(records, &rec)
	}
	return records, nil
}
