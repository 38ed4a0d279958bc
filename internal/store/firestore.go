package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the production backend: the same project the mobile app writes to.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, app *firebase.App) (*FirestoreStore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error { return s.client.Close() }

func (s *FirestoreStore) ref(collection, id string) *firestore.DocumentRef {
	return s.client.Collection(collection).Doc(id)
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	snap, err := s.ref(collection, id).Get(ctx)
	return snapshotData(snap, err)
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, doc Doc) error {
	_, err := s.ref(collection, id).Set(ctx, toFirestore(doc, false))
	return err
}

func (s *FirestoreStore) Merge(ctx context.Context, collection, id string, doc Doc) error {
	_, err := s.ref(collection, id).Set(ctx, toFirestore(doc, true), firestore.MergeAll)
	return err
}

func (s *FirestoreStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	_, err := s.ref(collection, id).Set(ctx, map[string]interface{}{field: firestore.Increment(delta)}, firestore.MergeAll)
	return err
}

func (s *FirestoreStore) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(doc, false))
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.ref(collection, id).Delete(ctx)
	return err
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	fq := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, f.Op, f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	it := fq.Documents(ctx)
	defer it.Stop()

	out := make([]Snapshot, 0)
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return out, nil
}

type firestoreTx struct {
	s  *FirestoreStore
	tx *firestore.Transaction
}

func (t *firestoreTx) Get(collection, id string) (Doc, error) {
	snap, err := t.tx.Get(t.s.ref(collection, id))
	return snapshotData(snap, err)
}

func (t *firestoreTx) Set(collection, id string, doc Doc) error {
	return t.tx.Set(t.s.ref(collection, id), toFirestore(doc, false))
}

func (t *firestoreTx) Merge(collection, id string, doc Doc) error {
	return t.tx.Set(t.s.ref(collection, id), toFirestore(doc, true), firestore.MergeAll)
}

func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{s: s, tx: tx})
	})
}

func snapshotData(snap *firestore.DocumentSnapshot, err error) (Doc, error) {
	if status.Code(err) == codes.NotFound {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, ErrNoDocument
	}
	return snap.Data(), nil
}

// toFirestore swaps store sentinels for the SDK's. Deletes are only legal in merges.
func toFirestore(doc Doc, merge bool) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case sentinel:
			if t == ServerTimestamp {
				out[k] = firestore.ServerTimestamp
			} else if merge {
				out[k] = firestore.Delete
			}
		case map[string]interface{}:
			out[k] = toFirestore(t, merge)
		default:
			out[k] = v
		}
	}
	return out
}
