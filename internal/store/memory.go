package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore implements Store in process memory. It backs local development
// and tests; subscriptions re-emit the full matching set on every mutation.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
	subs        []*memorySub

	// Fail, when set, is consulted before every operation and lets tests
	// inject one-sided failures into logically paired writes.
	Fail func(op, collection string) error
}

type memorySub struct {
	query Query
	sub   *Subscription
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
	}
}

func (m *MemoryStore) fail(op, collection string) error {
	if m.Fail != nil {
		return m.Fail(op, collection)
	}
	return nil
}

// Subscribe opens a live query and synchronously emits the current set.
func (m *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := m.fail("subscribe", q.Collection); err != nil {
		return nil, err
	}

	_, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)

	m.mu.Lock()
	ms := &memorySub{query: q, sub: sub}
	m.subs = append(m.subs, ms)
	sub.publish(m.resultSet(q))
	m.mu.Unlock()

	context.AfterFunc(ctx, sub.Dispose)
	return sub, nil
}

// Get returns a copy of the record, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := m.fail("get", collection); err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Fields: copyFields(fields)}, nil
}

// Set writes the record wholesale, overwriting any existing one.
func (m *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := m.fail("set", collection); err != nil {
		return err
	}

	m.mu.Lock()
	m.ensureCollection(collection)[id] = resolveTimestamps(copyFields(fields))
	m.broadcast(collection)
	m.mu.Unlock()
	return nil
}

// Add writes a new record under a store-assigned id.
func (m *MemoryStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	if err := m.fail("add", collection); err != nil {
		return "", err
	}

	id := ulid.Make().String()
	m.mu.Lock()
	m.ensureCollection(collection)[id] = resolveTimestamps(copyFields(fields))
	m.broadcast(collection)
	m.mu.Unlock()
	return id, nil
}

// Update applies field-level operations to an existing record.
func (m *MemoryStore) Update(ctx context.Context, collection, id string, ops []UpdateOp) error {
	if err := m.fail("update", collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for _, op := range ops {
		switch op.Kind {
		case UpdateSet:
			fields[op.Field] = resolveValue(op.Value)
		case UpdateArrayUnion:
			members := toStringSlice(fields[op.Field])
			value := fmt.Sprint(op.Value)
			if !containsString(members, value) {
				fields[op.Field] = append(members, value)
			}
		case UpdateArrayRemove:
			members := toStringSlice(fields[op.Field])
			value := fmt.Sprint(op.Value)
			kept := make([]string, 0, len(members))
			for _, member := range members {
				if member != value {
					kept = append(kept, member)
				}
			}
			fields[op.Field] = kept
		}
	}
	m.broadcast(collection)
	return nil
}

// Delete removes the record if present; deleting a missing record is a no-op.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.fail("delete", collection); err != nil {
		return err
	}

	m.mu.Lock()
	if coll, ok := m.collections[collection]; ok {
		delete(coll, id)
		m.broadcast(collection)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ensureCollection(collection string) map[string]map[string]interface{} {
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]interface{})
		m.collections[collection] = coll
	}
	return coll
}

// broadcast re-emits the full current set to every subscription on the
// collection. Callers must hold m.mu.
func (m *MemoryStore) broadcast(collection string) {
	for _, ms := range m.subs {
		if ms.query.Collection == collection {
			ms.sub.publish(m.resultSet(ms.query))
		}
	}
}

// resultSet evaluates a query against current data. Callers must hold m.mu.
func (m *MemoryStore) resultSet(q Query) []Document {
	docs := []Document{}
	for id, fields := range m.collections[q.Collection] {
		if matches(q, fields) {
			docs = append(docs, Document{ID: id, Fields: copyFields(fields)})
		}
	}
	orderDocuments(q, docs)
	return docs
}

func matches(q Query, fields map[string]interface{}) bool {
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(fields[f.Field], f.Value) {
				return false
			}
		case OpArrayContains:
			if !containsString(toStringSlice(fields[f.Field]), fmt.Sprint(f.Value)) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func orderDocuments(q Query, docs []Document) {
	if q.OrderBy == "" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		before := fieldBefore(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy], docs[i].ID, docs[j].ID)
		if q.Descending {
			return !before
		}
		return before
	})
}

func fieldBefore(a, b interface{}, aID, bID string) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	switch {
	case aok && bok && !at.Equal(bt):
		return at.Before(bt)
	case aok != bok:
		return !aok // records still missing the field sort last ascending
	case !aok && !bok && fmt.Sprint(a) != fmt.Sprint(b):
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
	return aID < bID
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if members, ok := v.([]string); ok {
			copied[k] = append([]string(nil), members...)
			continue
		}
		copied[k] = v
	}
	return copied
}

func resolveTimestamps(fields map[string]interface{}) map[string]interface{} {
	for k, v := range fields {
		fields[k] = resolveValue(v)
	}
	return fields
}

func resolveValue(v interface{}) interface{} {
	if _, ok := v.(ServerTimestamp); ok {
		return time.Now().UTC()
	}
	return v
}

func toStringSlice(v interface{}) []string {
	switch members := v.(type) {
	case []string:
		return append([]string(nil), members...)
	case []interface{}:
		out := make([]string, 0, len(members))
		for _, member := range members {
			out = append(out, fmt.Sprint(member))
		}
		return out
	default:
		return nil
	}
}

func containsString(members []string, value string) bool {
	for _, member := range members {
		if member == value {
			return true
		}
	}
	return false
}
