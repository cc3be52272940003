package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
)

type memoryEntry struct {
	record *model.ConversationRecord
	seq    uint64
}

// Memory is a process-local Repository. Records are lost on exit.
type Memory struct {
	opts    options
	mu      sync.RWMutex
	records map[model.RecordID]*memoryEntry
	seq     uint64
}

func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:    buildOptions(opts),
		records: make(map[model.RecordID]*memoryEntry),
	}
}

func (m *Memory) CreateRecord(ctx context.Context, record *model.ConversationRecord) (model.RecordID, error) {
	rec, err := m.opts.prepare(record)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return "", goerr.New("record already exists", goerr.V("record_id", rec.ID))
	}

	m.seq++
	m.records[rec.ID] = &memoryEntry{record: rec, seq: m.seq}

	entries := m.userEntries(rec.UserID)
	for _, e := range entries[min(len(entries), m.opts.maxPerUser):] {
		delete(m.records, e.record.ID)
	}

	return rec.ID, nil
}

func (m *Memory) UpdateRecord(ctx context.Context, id model.RecordID, update model.RecordUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.records[id]
	if !ok {
		return goerr.Wrap(model.ErrRecordNotFound, "failed to update record", goerr.V("record_id", id))
	}

	updated := entry.record.Clone()
	updated.Apply(update, m.opts.now())
	if err := updated.Validate(); err != nil {
		return err
	}
	entry.record = updated
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, id model.RecordID) (*model.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.records[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrRecordNotFound, "failed to get record", goerr.V("record_id", id))
	}
	return entry.record.Clone(), nil
}

func (m *Memory) ListRecordsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.userEntries(userID)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	records := make([]*model.ConversationRecord, len(entries))
	for i, e := range entries {
		records[i] = e.record.Clone()
	}
	return records, nil
}

// userEntries returns the user's entries, most recent first. Caller holds mu.
func (m *Memory) userEntries(userID model.UserID) []*memoryEntry {
	var entries []*memoryEntry
	for _, e := range m.records {
		if e.record.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].record.CreatedAt, entries[j].record.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return entries[i].seq > entries[j].seq
	})
	return entries
}
