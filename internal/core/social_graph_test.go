package core

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

func TestFollowWritesBothEdges(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewService(m, "alice")

	err := svc.Follow(ctx, "bob")
	assert.Equal(t, err, nil)

	_, err = m.Get(ctx, "users/bob/followers", "alice")
	assert.Equal(t, err, nil)
	_, err = m.Get(ctx, "users/alice/following", "bob")
	assert.Equal(t, err, nil)

	// Re-following overwrites the same keys.
	err = svc.Follow(ctx, "bob")
	assert.Equal(t, err, nil)

	followers, following, err := svc.FollowCounts(ctx, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, followers, 1)
	assert.Equal(t, following, 0)
}

func TestUnfollowRemovesBothEdges(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewService(m, "alice")

	err := svc.Follow(ctx, "bob")
	assert.Equal(t, err, nil)
	err = svc.Unfollow(ctx, "bob")
	assert.Equal(t, err, nil)

	_, err = m.Get(ctx, "users/bob/followers", "alice")
	assert.Equal(t, errors.Is(err, store.ErrNotFound), true)
	_, err = m.Get(ctx, "users/alice/following", "bob")
	assert.Equal(t, errors.Is(err, store.ErrNotFound), true)

	// Unfollowing an absent edge is a no-op.
	err = svc.Unfollow(ctx, "bob")
	assert.Equal(t, err, nil)
}

func TestSelfFollowRejected(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewService(m, "alice")

	assert.Equal(t, errors.Is(svc.Follow(ctx, "alice"), ErrSelfFollow), true)
	assert.Equal(t, errors.Is(svc.Unfollow(ctx, "alice"), ErrSelfFollow), true)
}

func TestFollowPartialFailureNamesAppliedSide(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	boom := errors.New("boom")
	m.Fail = func(op, collection string) error {
		if collection == "users/alice/following" {
			return boom
		}
		return nil
	}

	svc := NewService(m, "alice")
	err := svc.Follow(ctx, "bob")

	var partial *PartialWriteError
	assert.Equal(t, errors.As(err, &partial), true)
	assert.Equal(t, partial.Op, "follow")
	assert.Equal(t, partial.Done, []string{"users/bob/followers/alice"})

	// The follower edge landed, the following edge did not.
	_, err = m.Get(ctx, "users/bob/followers", "alice")
	assert.Equal(t, err, nil)
	_, err = m.Get(ctx, "users/alice/following", "bob")
	assert.Equal(t, errors.Is(err, store.ErrNotFound), true)
}

func TestUnfollowPartialFailureNamesAppliedSide(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewService(m, "alice")

	err := svc.Follow(ctx, "bob")
	assert.Equal(t, err, nil)

	boom := errors.New("boom")
	m.Fail = func(op, collection string) error {
		if op == "delete" && collection == "users/alice/following" {
			return boom
		}
		return nil
	}

	err = svc.Unfollow(ctx, "bob")
	var partial *PartialWriteError
	assert.Equal(t, errors.As(err, &partial), true)
	assert.Equal(t, partial.Op, "unfollow")
	assert.Equal(t, partial.Done, []string{"users/bob/followers/alice"})
}

func TestIsFollowing(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewService(m, "alice")

	following, err := svc.IsFollowing(ctx, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, following, false)

	err = svc.Follow(ctx, "bob")
	assert.Equal(t, err, nil)

	following, err = svc.IsFollowing(ctx, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, following, true)
}

func TestFollowCountsAreLiveCollectionSizes(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	for _, follower := range []string{"bob", "carol", "dave"} {
		err := NewService(m, follower).Follow(ctx, "alice")
		assert.Equal(t, err, nil)
	}
	err := NewService(m, "alice").Follow(ctx, "bob")
	assert.Equal(t, err, nil)

	svc := NewService(m, "alice")
	followers, following, err := svc.FollowCounts(ctx, "alice")
	assert.Equal(t, err, nil)
	assert.Equal(t, followers, 3)
	assert.Equal(t, following, 1)
}

func TestFollowersJoinsProfiles(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	err := m.Set(ctx, "users", "bob", map[string]interface{}{"username": "Bob"})
	assert.Equal(t, err, nil)

	err = NewService(m, "bob").Follow(ctx, "alice")
	assert.Equal(t, err, nil)
	err = NewService(m, "ghost").Follow(ctx, "alice")
	assert.Equal(t, err, nil)

	svc := NewService(m, "alice")
	entries, err := svc.Followers(ctx, "alice")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(entries), 2)

	byID := make(map[string]FollowListEntry)
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, byID["bob"].Username, "Bob")
	assert.Equal(t, byID["bob"].IsFollowing, false)
	assert.Equal(t, byID["ghost"].Username, models.PlaceholderUsername)
}

func TestWatchFollowersEmitsEdges(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()

	svc := NewService(m, "alice")
	watch, err := svc.WatchFollowers(ctx, "alice")
	assert.Equal(t, err, nil)
	defer watch.Dispose()

	edges := <-watch.Updates()
	assert.Equal(t, len(edges), 0)

	err = NewService(m, "bob").Follow(ctx, "alice")
	assert.Equal(t, err, nil)

	edges = <-watch.Updates()
	assert.Equal(t, len(edges), 1)
	assert.Equal(t, edges[0].UserID, "bob")
}
