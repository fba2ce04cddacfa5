package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func receiveDocs(t *testing.T, sub *Subscription) []Document {
	t.Helper()
	select {
	case docs, ok := <-sub.Updates():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	return nil
}

func TestSubscribeEmitsInitialSet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "posts", "a", map[string]interface{}{"text": "hello"})
	assert.Equal(t, err, nil)

	sub, err := m.Subscribe(ctx, Query{Collection: "posts"})
	assert.Equal(t, err, nil)
	defer sub.Dispose()

	docs := receiveDocs(t, sub)
	assert.Equal(t, len(docs), 1)
	assert.Equal(t, docs[0].ID, "a")
	assert.Equal(t, docs[0].Fields["text"], "hello")
}

func TestSubscribeEmitsFullSetOnEveryChange(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, Query{Collection: "posts"})
	assert.Equal(t, err, nil)
	defer sub.Dispose()

	docs := receiveDocs(t, sub)
	assert.Equal(t, len(docs), 0)

	err = m.Set(ctx, "posts", "a", map[string]interface{}{"text": "one"})
	assert.Equal(t, err, nil)
	docs = receiveDocs(t, sub)
	assert.Equal(t, len(docs), 1)

	err = m.Set(ctx, "posts", "b", map[string]interface{}{"text": "two"})
	assert.Equal(t, err, nil)
	docs = receiveDocs(t, sub)
	assert.Equal(t, len(docs), 2)
}

func TestSubscribeConflatesToNewestSet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, Query{Collection: "posts"})
	assert.Equal(t, err, nil)
	defer sub.Dispose()

	// Two writes land before the consumer reads; only the newest set
	// remains on the channel.
	err = m.Set(ctx, "posts", "a", map[string]interface{}{"text": "one"})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "b", map[string]interface{}{"text": "two"})
	assert.Equal(t, err, nil)

	docs := receiveDocs(t, sub)
	assert.Equal(t, len(docs), 2)
}

func TestEqualityAndArrayContainsFilters(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "posts", "pub", map[string]interface{}{"visibility": "public"})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "priv", map[string]interface{}{
		"visibility": "restricted",
		"visibleTo":  []string{"alice"},
	})
	assert.Equal(t, err, nil)

	sub, err := m.Subscribe(ctx, Query{
		Collection: "posts",
		Filters:    []Filter{{Field: "visibility", Op: OpEqual, Value: "public"}},
	})
	assert.Equal(t, err, nil)
	docs := receiveDocs(t, sub)
	assert.Equal(t, len(docs), 1)
	assert.Equal(t, docs[0].ID, "pub")
	sub.Dispose()

	sub, err = m.Subscribe(ctx, Query{
		Collection: "posts",
		Filters:    []Filter{{Field: "visibleTo", Op: OpArrayContains, Value: "alice"}},
	})
	assert.Equal(t, err, nil)
	docs = receiveDocs(t, sub)
	assert.Equal(t, len(docs), 1)
	assert.Equal(t, docs[0].ID, "priv")
	sub.Dispose()
}

func TestOrderByDescendingMissingFieldFirst(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	err := m.Set(ctx, "posts", "old", map[string]interface{}{"createdAt": base})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "new", map[string]interface{}{"createdAt": base.Add(time.Hour)})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "pending", map[string]interface{}{})
	assert.Equal(t, err, nil)

	sub, err := m.Subscribe(ctx, Query{Collection: "posts", OrderBy: "createdAt", Descending: true})
	assert.Equal(t, err, nil)
	defer sub.Dispose()

	docs := receiveDocs(t, sub)
	assert.Equal(t, len(docs), 3)
	assert.Equal(t, docs[0].ID, "pending")
	assert.Equal(t, docs[1].ID, "new")
	assert.Equal(t, docs[2].ID, "old")
}

func TestDisposeStopsEmissions(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, Query{Collection: "posts"})
	assert.Equal(t, err, nil)
	receiveDocs(t, sub)

	sub.Dispose()

	err = m.Set(ctx, "posts", "a", map[string]interface{}{"text": "late"})
	assert.Equal(t, err, nil)

	_, ok := <-sub.Updates()
	assert.Equal(t, ok, false)
}

func TestUpdateArrayOps(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "posts", "p", map[string]interface{}{"likedBy": []string{}})
	assert.Equal(t, err, nil)

	err = m.Update(ctx, "posts", "p", []UpdateOp{
		{Field: "likedBy", Kind: UpdateArrayUnion, Value: "alice"},
	})
	assert.Equal(t, err, nil)

	// Union with an existing member is a no-op.
	err = m.Update(ctx, "posts", "p", []UpdateOp{
		{Field: "likedBy", Kind: UpdateArrayUnion, Value: "alice"},
	})
	assert.Equal(t, err, nil)

	doc, err := m.Get(ctx, "posts", "p")
	assert.Equal(t, err, nil)
	assert.Equal(t, doc.Fields["likedBy"], []string{"alice"})

	err = m.Update(ctx, "posts", "p", []UpdateOp{
		{Field: "likedBy", Kind: UpdateArrayRemove, Value: "alice"},
	})
	assert.Equal(t, err, nil)

	doc, err = m.Get(ctx, "posts", "p")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(doc.Fields["likedBy"].([]string)), 0)
}

func TestGetNotFound(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Get(context.Background(), "posts", "missing")
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	m := NewMemoryStore()
	err := m.Delete(context.Background(), "posts", "missing")
	assert.Equal(t, err, nil)
}

func TestServerTimestampResolvedOnWrite(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "posts", "p", map[string]interface{}{"createdAt": ServerTimestamp{}})
	assert.Equal(t, err, nil)

	doc, err := m.Get(ctx, "posts", "p")
	assert.Equal(t, err, nil)
	_, ok := doc.Fields["createdAt"].(time.Time)
	assert.Equal(t, ok, true)
}

func TestFailHookInjectsErrors(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")
	m.Fail = func(op, collection string) error {
		if op == "set" && collection == "posts" {
			return boom
		}
		return nil
	}

	err := m.Set(ctx, "posts", "p", map[string]interface{}{})
	assert.Equal(t, errors.Is(err, boom), true)

	err = m.Set(ctx, "users", "u", map[string]interface{}{})
	assert.Equal(t, err, nil)
}
