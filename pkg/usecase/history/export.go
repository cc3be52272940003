package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/adapter"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
	"github.com/romirm/advice-app/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

var ErrNoExportSink = goerr.New("no export destination configured")

// ExportRow is the BigQuery row for one conversation record
type ExportRow struct {
	ID                  string              `bigquery:"id"`
	UserID              string              `bigquery:"user_id"`
	Question            string              `bigquery:"question"`
	SelectedPerspective string              `bigquery:"selected_perspective"`
	Perspectives        []ExportPerspective `bigquery:"perspectives"`
	MessageCount        int                 `bigquery:"message_count"`
	ContextSize         int                 `bigquery:"context_size"`
	CreatedAt           time.Time           `bigquery:"created_at"`
	UpdatedAt           time.Time           `bigquery:"updated_at"`
	ExportedAt          time.Time           `bigquery:"exported_at"`
}

type ExportPerspective struct {
	Name   string `bigquery:"name"`
	Advice string `bigquery:"advice"`
}

func newExportRow(rec *model.ConversationRecord, exportedAt time.Time) ExportRow {
	row := ExportRow{
		ID:                  string(rec.ID),
		UserID:              string(rec.UserID),
		Question:            rec.Question,
		SelectedPerspective: rec.Selected(),
		MessageCount:        len(rec.Conversation),
		ContextSize:         rec.Context.Len(),
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
		ExportedAt:          exportedAt,
	}
	for _, p := range rec.Perspectives {
		row.Perspectives = append(row.Perspectives, ExportPerspective{Name: p.Name, Advice: p.Advice})
	}
	return row
}

// ExportInput selects the records to export and where to send them. At least
// one of BigQuery and Storage must be set.
type ExportInput struct {
	UserID model.UserID
	Limit  int

	BigQuery adapter.BigQuery
	Dataset  string
	Table    string

	Storage   adapter.Storage
	ObjectKey string

	Now func() time.Time
}

type ExportResult struct {
	Records   int    `json:"records"`
	Table     string `json:"table,omitempty"`
	ObjectKey string `json:"objectKey,omitempty"`
}

// Export copies a user's conversation records to BigQuery rows and a JSON
// Lines object. Both destinations are written concurrently.
func Export(ctx context.Context, repo repository.Repository, in ExportInput) (*ExportResult, error) {
	if in.BigQuery == nil && in.Storage == nil {
		return nil, ErrNoExportSink
	}
	if in.BigQuery != nil && (in.Dataset == "" || in.Table == "") {
		return nil, goerr.New("dataset and table are required for BigQuery export")
	}

	now := time.Now
	if in.Now != nil {
		now = in.Now
	}
	exportedAt := now().UTC()

	records, err := List(ctx, repo, in.UserID, in.Limit)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{Records: len(records)}
	if len(records) == 0 {
		logging.From(ctx).Info("no history to export", "user_id", in.UserID)
		return result, nil
	}

	eg, ctx := errgroup.WithContext(ctx)

	if in.BigQuery != nil {
		result.Table = in.Dataset + "." + in.Table
		eg.Go(func() error {
			rows := make([]ExportRow, len(records))
			for i, rec := range records {
				rows[i] = newExportRow(rec, exportedAt)
			}
			return in.BigQuery.Insert(ctx, in.Dataset, in.Table, rows)
		})
	}

	if in.Storage != nil {
		key := in.ObjectKey
		if key == "" {
			key = fmt.Sprintf("history/%s/%s.jsonl", in.UserID, exportedAt.Format("20060102T150405Z"))
		}
		result.ObjectKey = key
		eg.Go(func() error {
			return writeJSONLines(ctx, in.Storage, key, records)
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to export history", goerr.V("user_id", in.UserID))
	}

	logging.From(ctx).Info("history exported",
		"user_id", in.UserID,
		"records", result.Records,
		"table", result.Table,
		"object", result.ObjectKey)
	return result, nil
}

func writeJSONLines(ctx context.Context, storage adapter.Storage, key string, records []*model.ConversationRecord) error {
	w, err := storage.Put(ctx, key, "application/x-ndjson")
	if err != nil {
		return goerr.Wrap(err, "failed to open export object", goerr.V("key", key))
	}

	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = w.Close()
			return goerr.Wrap(err, "failed to write record", goerr.V("key", key), goerr.V("record_id", rec.ID))
		}
	}

	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit export object", goerr.V("key", key))
	}
	return nil
}
