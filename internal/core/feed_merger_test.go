package core

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

func at(unix int64) *time.Time {
	t := time.Unix(unix, 0).UTC()
	return &t
}

func postIDs(posts []models.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func enrichedIDs(posts []models.EnrichedPost) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

// awaitFeed reads merged emissions until the id sequence matches want.
func awaitFeed(t *testing.T, fs *FeedStream, want []string) []models.EnrichedPost {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var last []string
	for {
		select {
		case posts, ok := <-fs.Updates():
			if !ok {
				t.Fatalf("feed closed while waiting for %v, last saw %v", want, last)
			}
			last = enrichedIDs(posts)
			if equalIDs(last, want) {
				return posts
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v, last saw %v", want, last)
		}
	}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeSlotsDeduplicatesAndOrders(t *testing.T) {
	slots := map[string][]models.Post{
		"public": {
			{ID: "1", CreatedAt: at(100)},
			{ID: "2", CreatedAt: at(200)},
		},
		"restricted": {
			{ID: "2", CreatedAt: at(200)},
			{ID: "3", CreatedAt: at(150)},
		},
	}
	assert.Equal(t, postIDs(mergeSlots(slots)), []string{"2", "3", "1"})
}

func TestMergeSlotsPendingTimestampFirst(t *testing.T) {
	slots := map[string][]models.Post{
		"public": {
			{ID: "1", CreatedAt: at(100)},
			{ID: "2", CreatedAt: at(200)},
			{ID: "4"}, // timestamp not yet assigned
		},
		"restricted": {
			{ID: "2", CreatedAt: at(200)},
			{ID: "3", CreatedAt: at(150)},
		},
	}
	assert.Equal(t, postIDs(mergeSlots(slots)), []string{"4", "2", "3", "1"})
}

func TestMergeSlotsTieBreaksOnID(t *testing.T) {
	slots := map[string][]models.Post{
		"public": {
			{ID: "b", CreatedAt: at(100)},
			{ID: "a", CreatedAt: at(100)},
		},
	}
	assert.Equal(t, postIDs(mergeSlots(slots)), []string{"a", "b"})

	// Two pending posts also tie-break on id.
	slots = map[string][]models.Post{
		"public": {{ID: "y"}, {ID: "x"}},
	}
	assert.Equal(t, postIDs(mergeSlots(slots)), []string{"x", "y"})
}

func TestMergeSlotsIsIdempotent(t *testing.T) {
	slots := map[string][]models.Post{
		"public":     {{ID: "1", CreatedAt: at(100)}, {ID: "2", CreatedAt: at(200)}},
		"restricted": {{ID: "3", CreatedAt: at(150)}},
	}
	first := postIDs(mergeSlots(slots))
	second := postIDs(mergeSlots(slots))
	assert.Equal(t, first, second)
}

func TestMergeSlotsEmptySlotClearsContribution(t *testing.T) {
	slots := map[string][]models.Post{
		"public":     {{ID: "1", CreatedAt: at(100)}},
		"restricted": {{ID: "3", CreatedAt: at(150)}},
	}
	assert.Equal(t, postIDs(mergeSlots(slots)), []string{"3", "1"})

	slots["restricted"] = nil
	assert.Equal(t, postIDs(mergeSlots(slots)), []string{"1"})
}

func TestDeliverDiscardsStaleGeneration(t *testing.T) {
	fs := &FeedStream{updates: make(chan []models.EnrichedPost, 1)}

	newer := []models.EnrichedPost{{Post: models.Post{ID: "new"}}}
	older := []models.EnrichedPost{{Post: models.Post{ID: "old"}}}

	fs.deliver(2, newer)
	fs.deliver(1, older) // finished late, must be discarded

	got := <-fs.updates
	assert.Equal(t, enrichedIDs(got), []string{"new"})
	select {
	case extra := <-fs.updates:
		t.Fatalf("unexpected extra emission %v", enrichedIDs(extra))
	default:
	}
}

func TestDeliverConflatesToNewest(t *testing.T) {
	fs := &FeedStream{updates: make(chan []models.EnrichedPost, 1)}

	fs.deliver(1, []models.EnrichedPost{{Post: models.Post{ID: "a"}}})
	fs.deliver(2, []models.EnrichedPost{{Post: models.Post{ID: "b"}}})

	got := <-fs.updates
	assert.Equal(t, enrichedIDs(got), []string{"b"})
}

func TestOpenFeedMergesSources(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "users", "alice", map[string]interface{}{"username": "Alice"})
	assert.Equal(t, err, nil)

	err = m.Set(ctx, "posts", "1", map[string]interface{}{
		"userId": "alice", "visibility": "public", "createdAt": time.Unix(100, 0).UTC(),
	})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "2", map[string]interface{}{
		"userId": "alice", "visibility": "public", "createdAt": time.Unix(200, 0).UTC(),
		"visibleTo": []string{"carol"}, // matched by two sources, must appear once
	})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "3", map[string]interface{}{
		"userId": "alice", "visibility": "restricted", "createdAt": time.Unix(150, 0).UTC(),
		"visibleTo": []string{"carol"},
	})
	assert.Equal(t, err, nil)

	svc := NewService(m, "carol")
	fs, err := svc.OpenFeed(ctx, HomeScope("carol", nil))
	assert.Equal(t, err, nil)
	defer svc.CloseFeed("home")

	posts := awaitFeed(t, fs, []string{"2", "3", "1"})
	assert.Equal(t, posts[0].Author.Username, "Alice")

	// A post the server has not timestamped yet sorts first.
	err = m.Set(ctx, "posts", "4", map[string]interface{}{
		"userId": "alice", "visibility": "public",
	})
	assert.Equal(t, err, nil)
	awaitFeed(t, fs, []string{"4", "2", "3", "1"})
}

func TestOpenFeedMissingAuthorDegradesToPlaceholder(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "posts", "1", map[string]interface{}{
		"userId": "ghost", "visibility": "public", "createdAt": time.Unix(100, 0).UTC(),
	})
	assert.Equal(t, err, nil)

	svc := NewService(m, "carol")
	fs, err := svc.OpenFeed(ctx, HomeScope("carol", nil))
	assert.Equal(t, err, nil)
	defer svc.CloseFeed("home")

	posts := awaitFeed(t, fs, []string{"1"})
	assert.Equal(t, posts[0].Author.Username, models.PlaceholderUsername)
}

func TestGroupScopeFeed(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "groups", "g1", map[string]interface{}{
		"name": "Hikers", "members": []string{"carol"},
	})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "1", map[string]interface{}{
		"userId": "alice", "visibility": "public", "groupId": "g1",
		"createdAt": time.Unix(100, 0).UTC(),
	})
	assert.Equal(t, err, nil)
	err = m.Set(ctx, "posts", "2", map[string]interface{}{
		"userId": "alice", "visibility": "public",
		"createdAt": time.Unix(200, 0).UTC(),
	})
	assert.Equal(t, err, nil)

	svc := NewService(m, "carol")
	fs, err := svc.OpenFeed(ctx, GroupScope("g1"))
	assert.Equal(t, err, nil)
	defer svc.CloseFeed("group:g1")

	posts := awaitFeed(t, fs, []string{"1"})
	assert.Equal(t, posts[0].GroupName, "Hikers")
}

func TestCloseFeedStopsEmissions(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	svc := NewService(m, "carol")
	fs, err := svc.OpenFeed(ctx, HomeScope("carol", nil))
	assert.Equal(t, err, nil)

	svc.CloseFeed("home")

	err = m.Set(ctx, "posts", "late", map[string]interface{}{
		"userId": "alice", "visibility": "public",
	})
	assert.Equal(t, err, nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-fs.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed channel not closed after CloseFeed")
		}
	}
}
