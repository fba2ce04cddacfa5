package store

import (
	"context"
	"sync"
)

// Document is a single record as held by the backing store.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// FilterOp enumerates the predicate operators supported by live queries.
type FilterOp string

const (
	OpEqual         FilterOp = "=="
	OpArrayContains FilterOp = "array-contains"
)

// Filter is one predicate clause of a Query.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// Query describes a live query against one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
}

// UpdateKind enumerates the supported single-record update operations.
type UpdateKind string

const (
	UpdateSet         UpdateKind = "set"
	UpdateArrayUnion  UpdateKind = "arrayUnion"
	UpdateArrayRemove UpdateKind = "arrayRemove"
)

// UpdateOp mutates a single field of a record.
type UpdateOp struct {
	Field string
	Kind  UpdateKind
	Value interface{}
}

// ServerTimestamp marks a field whose value is assigned by the store at
// commit time. Until the server assigns it, readers see the field as unset.
type ServerTimestamp struct{}

// Store is the document-store boundary: live queries over one collection,
// point reads, and single-record writes. No multi-record transactions.
type Store interface {
	// Subscribe opens a live query. The subscription emits the full current
	// matching result set on every change, starting with the current set.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	Update(ctx context.Context, collection, id string, ops []UpdateOp) error
	// Delete removes a record. Deleting a missing record is a no-op.
	Delete(ctx context.Context, collection, id string) error
}

// Subscription is the handle for one open live query. Emissions carry the
// full current result set, never a diff. Rapid changes may be coalesced:
// the channel holds only the newest undelivered set.
type Subscription struct {
	updates chan []Document
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{
		updates: make(chan []Document, 1),
		cancel:  cancel,
	}
}

// Updates returns the emission channel. It is closed by Dispose.
func (s *Subscription) Updates() <-chan []Document {
	return s.updates
}

// publish replaces any undelivered result set with docs, so a slow consumer
// always reads the newest snapshot. Emissions after Dispose are dropped.
func (s *Subscription) publish(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- docs
}

// Dispose stops emissions and releases the underlying store listener. No
// emission is delivered after Dispose returns, even one already in flight.
func (s *Subscription) Dispose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()
	s.cancel()
}
