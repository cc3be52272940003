package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	question TEXT NOT NULL,
	selected_perspective TEXT,
	perspectives_json TEXT NOT NULL,
	conversation_json TEXT NOT NULL,
	context_json TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at);
`

const sqliteColumns = `id, user_id, question, selected_perspective, perspectives_json, conversation_json, context_json, created_at, updated_at`

// SQLite stores conversation records in a single local database file
type SQLite struct {
	db   *sql.DB
	path string
	opts options
}

// NewSQLite opens or creates the database at path
func NewSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	if path == "" {
		return nil, goerr.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}
	// one connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to initialize schema", goerr.V("path", path))
	}

	return &SQLite{
		db:   db,
		path: path,
		opts: buildOptions(opts),
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Path() string {
	return s.path
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ConversationRecord, error) {
	var (
		rec                  model.ConversationRecord
		id, userID           string
		selected             sql.NullString
		perspectivesJSON     string
		conversationJSON     string
		ctxJSON              string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &userID, &rec.Question, &selected, &perspectivesJSON, &conversationJSON, &ctxJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rec.ID = model.RecordID(id)
	rec.UserID = model.UserID(userID)
	if selected.Valid {
		name := selected.String
		rec.SelectedPerspective = &name
	}
	if err := json.Unmarshal([]byte(perspectivesJSON), &rec.Perspectives); err != nil {
		return nil, goerr.Wrap(err, "failed to decode perspectives", goerr.V("record_id", id))
	}
	if err := json.Unmarshal([]byte(conversationJSON), &rec.Conversation); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("record_id", id))
	}
	if err := json.Unmarshal([]byte(ctxJSON), &rec.Context); err != nil {
		return nil, goerr.Wrap(err, "failed to decode context", goerr.V("record_id", id))
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &rec, nil
}

type encodedRecord struct {
	selected         sql.NullString
	perspectivesJSON string
	conversationJSON string
	contextJSON      string
}

func encodeRecord(rec *model.ConversationRecord) (*encodedRecord, error) {
	perspectives := rec.Perspectives
	if perspectives == nil {
		perspectives = []model.Perspective{}
	}
	conversation := rec.Conversation
	if conversation == nil {
		conversation = []model.Message{}
	}

	p, err := json.Marshal(perspectives)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode perspectives")
	}
	c, err := json.Marshal(conversation)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode conversation")
	}
	uc, err := json.Marshal(rec.Context)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode context")
	}

	enc := &encodedRecord{
		perspectivesJSON: string(p),
		conversationJSON: string(c),
		contextJSON:      string(uc),
	}
	if rec.SelectedPerspective != nil {
		enc.selected = sql.NullString{String: *rec.SelectedPerspective, Valid: true}
	}
	return enc, nil
}

func (s *SQLite) CreateRecord(ctx context.Context, record *model.ConversationRecord) (model.RecordID, error) {
	rec, err := s.opts.prepare(record)
	if err != nil {
		return "", err
	}
	enc, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.UserID), rec.Question, enc.selected,
		enc.perspectivesJSON, enc.conversationJSON, enc.contextJSON,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	); err != nil {
		return "", goerr.Wrap(err, "failed to insert record", goerr.V("record_id", rec.ID))
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND id NOT IN (
			SELECT id FROM conversations WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`,
		string(rec.UserID), string(rec.UserID), s.opts.maxPerUser,
	); err != nil {
		return "", goerr.Wrap(err, "failed to evict old records", goerr.V("user_id", rec.UserID))
	}

	if err := tx.Commit(); err != nil {
		return "", goerr.Wrap(err, "failed to commit record", goerr.V("record_id", rec.ID))
	}
	return rec.ID, nil
}

func (s *SQLite) UpdateRecord(ctx context.Context, id model.RecordID, update model.RecordUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM conversations WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return goerr.Wrap(model.ErrRecordNotFound, "failed to update record", goerr.V("record_id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read record", goerr.V("record_id", id))
	}

	rec.Apply(update, s.opts.now())
	if err := rec.Validate(); err != nil {
		return err
	}
	enc, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET selected_perspective = ?, conversation_json = ?, context_json = ?, updated_at = ? WHERE id = ?`,
		enc.selected, enc.conversationJSON, enc.contextJSON, rec.UpdatedAt.UnixNano(), string(id),
	); err != nil {
		return goerr.Wrap(err, "failed to update record", goerr.V("record_id", id))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit update", goerr.V("record_id", id))
	}
	return nil
}

func (s *SQLite) GetRecord(ctx context.Context, id model.RecordID) (*model.ConversationRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM conversations WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrRecordNotFound, "failed to get record", goerr.V("record_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get record", goerr.V("record_id", id))
	}
	return rec, nil
}

func (s *SQLite) ListRecordsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.ConversationRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM conversations WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		string(userID), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list records", goerr.V("user_id", userID))
	}
	defer rows.Close()

	var records []*model.ConversationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan record", goerr.V("user_id", userID))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate records", goerr.V("user_id", userID))
	}
	return records, nil
}
