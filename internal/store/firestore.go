package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store for Cloud Firestore. Query.Snapshots
// delivers the full current result set on every change, which is exactly
// the Subscription contract, so the adapter stays thin.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new FirestoreStore.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Subscribe opens a snapshot listener for the query. The first snapshot is
// fetched synchronously so access-rule rejections surface to the caller;
// later connectivity loss is absorbed by resubscribing and re-emitting the
// full current set.
func (s *FirestoreStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.buildQuery(q).Snapshots(ctx)

	snap, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, mapFirestoreError(err)
	}

	sub := newSubscription(cancel)
	docs, err := snapshotDocuments(snap)
	if err != nil {
		log.Printf("firestore: reading initial snapshot for %s: %v", q.Collection, err)
	} else {
		sub.publish(docs)
	}

	go s.listen(ctx, q, it, sub)
	return sub, nil
}

func (s *FirestoreStore) listen(ctx context.Context, q Query, it *firestore.QuerySnapshotIterator, sub *Subscription) {
	for {
		for {
			snap, err := it.Next()
			if err != nil {
				it.Stop()
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				log.Printf("firestore: snapshot listener for %s interrupted, resubscribing: %v", q.Collection, err)
				break
			}
			docs, err := snapshotDocuments(snap)
			if err != nil {
				log.Printf("firestore: reading snapshot for %s: %v", q.Collection, err)
				continue
			}
			sub.publish(docs)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		it = s.buildQuery(q).Snapshots(ctx)
	}
}

func (s *FirestoreStore) buildQuery(q Query) firestore.Query {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	return fq
}

func snapshotDocuments(snap *firestore.QuerySnapshot) ([]Document, error) {
	raw, err := snap.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(raw))
	for i, d := range raw {
		docs[i] = Document{ID: d.Ref.ID, Fields: d.Data()}
	}
	return docs, nil
}

// Get performs a point read of one record.
func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{}, mapFirestoreError(err)
	}
	return Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

// Set writes the record wholesale under the given id.
func (s *FirestoreStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, firestoreFields(fields))
	return mapFirestoreError(err)
}

// Add writes a new record under a store-assigned id.
func (s *FirestoreStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, firestoreFields(fields))
	if err != nil {
		return "", mapFirestoreError(err)
	}
	return ref.ID, nil
}

// Update applies field-level operations to an existing record.
func (s *FirestoreStore) Update(ctx context.Context, collection, id string, ops []UpdateOp) error {
	updates := make([]firestore.Update, len(ops))
	for i, op := range ops {
		u := firestore.Update{Path: op.Field}
		switch op.Kind {
		case UpdateArrayUnion:
			u.Value = firestore.ArrayUnion(op.Value)
		case UpdateArrayRemove:
			u.Value = firestore.ArrayRemove(op.Value)
		default:
			u.Value = firestoreValue(op.Value)
		}
		updates[i] = u
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	return mapFirestoreError(err)
}

// Delete removes the record. Firestore deletes are no-ops on missing records.
func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return mapFirestoreError(err)
}

func firestoreFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = firestoreValue(v)
	}
	return out
}

func firestoreValue(v interface{}) interface{} {
	if _, ok := v.(ServerTimestamp); ok {
		return firestore.ServerTimestamp
	}
	return v
}

func mapFirestoreError(err error) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}
