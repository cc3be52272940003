package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const collectionConversations = "conversations"

// Firestore stores conversation records in the "conversations" collection,
// one document per record keyed by record ID.
type Firestore struct {
	client     *firestore.Client
	collection string
	opts       options
}

// NewFirestore creates a Firestore repository. databaseID may be empty for the
// default database.
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project id is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{
		client:     client,
		collection: collectionConversations,
		opts:       buildOptions(opts),
	}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) doc(id model.RecordID) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(string(id))
}

func (r *Firestore) userQuery(userID model.UserID) firestore.Query {
	return r.client.Collection(r.collection).
		Where("user_id", "==", string(userID)).
		OrderBy("created_at", firestore.Desc)
}

func (r *Firestore) CreateRecord(ctx context.Context, record *model.ConversationRecord) (model.RecordID, error) {
	rec, err := r.opts.prepare(record)
	if err != nil {
		return "", err
	}

	if _, err := r.doc(rec.ID).Create(ctx, rec); err != nil {
		return "", goerr.Wrap(err, "failed to create record", goerr.V("record_id", rec.ID))
	}

	if err := r.evict(ctx, rec.UserID); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// evict deletes the user's records beyond the retention limit, oldest first
func (r *Firestore) evict(ctx context.Context, userID model.UserID) error {
	iter := r.userQuery(userID).Offset(r.opts.maxPerUser).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate records for eviction", goerr.V("user_id", userID))
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to evict record", goerr.V("doc_id", doc.Ref.ID))
		}
	}
}

func (r *Firestore) UpdateRecord(ctx context.Context, id model.RecordID, update model.RecordUpdate) error {
	ref := r.doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrRecordNotFound, "failed to update record", goerr.V("record_id", id))
			}
			return goerr.Wrap(err, "failed to get record", goerr.V("record_id", id))
		}

		var rec model.ConversationRecord
		if err := snap.DataTo(&rec); err != nil {
			return goerr.Wrap(err, "failed to decode record", goerr.V("record_id", id))
		}

		rec.Apply(update, r.opts.now())
		if err := rec.Validate(); err != nil {
			return err
		}
		return tx.Set(ref, &rec)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to run update transaction", goerr.V("record_id", id))
	}
	return nil
}

func (r *Firestore) GetRecord(ctx context.Context, id model.RecordID) (*model.ConversationRecord, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrRecordNotFound, "failed to get record", goerr.V("record_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get record", goerr.V("record_id", id))
	}

	var rec model.ConversationRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record", goerr.V("record_id", id))
	}
	return &rec, nil
}

func (r *Firestore) ListRecordsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.ConversationRecord, error) {
	q := r.userQuery(userID)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var records []*model.ConversationRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate records", goerr.V("user_id", userID))
		}

		var rec model.ConversationRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, goerr.Wrap(err, "failed to decode record", goerr.V("doc_id", doc.Ref.ID))
		}
		records = append(records, &rec)
	}
	return records, nil
}
