package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrSelfFollow is returned when a user tries to follow or unfollow
// themselves.
var ErrSelfFollow = errors.New("cannot follow yourself")

// PartialWriteError reports that one write of a logically paired pair
// landed and the other failed. No rollback is attempted; the caller decides
// whether to retry or reconcile.
type PartialWriteError struct {
	Op   string   // "follow", "unfollow" or "like"
	Done []string // records already written or deleted
	Err  error    // failure from the write that did not land
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: %v (writes already applied: %s)", e.Op, e.Err, strings.Join(e.Done, ", "))
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

func followersCollection(userID string) string {
	return collUsers + "/" + userID + "/followers"
}

func followingCollection(userID string) string {
	return collUsers + "/" + userID + "/following"
}

// Follow records that the current user follows targetID: one record under
// the target's followers collection and one under the current user's
// following collection, written independently. Re-following overwrites the
// same keys, so the operation is idempotent.
func (s *Service) Follow(ctx context.Context, targetID string) error {
	if targetID == s.self {
		return ErrSelfFollow
	}

	if err := s.store.Set(ctx, followersCollection(targetID), s.self, map[string]interface{}{
		models.FollowFieldFollowerID: s.self,
		models.FollowFieldFollowedAt: store.ServerTimestamp{},
	}); err != nil {
		return fmt.Errorf("follow: %w", err)
	}

	if err := s.store.Set(ctx, followingCollection(s.self), targetID, map[string]interface{}{
		models.FollowFieldFollowedID: targetID,
		models.FollowFieldFollowedAt: store.ServerTimestamp{},
	}); err != nil {
		return &PartialWriteError{
			Op:   "follow",
			Done: []string{followersCollection(targetID) + "/" + s.self},
			Err:  err,
		}
	}
	return nil
}

// Unfollow deletes both edge records. Deleting an edge that does not exist
// is a no-op, so the operation is idempotent.
func (s *Service) Unfollow(ctx context.Context, targetID string) error {
	if targetID == s.self {
		return ErrSelfFollow
	}

	if err := s.store.Delete(ctx, followersCollection(targetID), s.self); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}

	if err := s.store.Delete(ctx, followingCollection(s.self), targetID); err != nil {
		return &PartialWriteError{
			Op:   "unfollow",
			Done: []string{followersCollection(targetID) + "/" + s.self},
			Err:  err,
		}
	}
	return nil
}

// IsFollowing reports whether the current user follows targetID, judged by
// the current user's own following record.
func (s *Service) IsFollowing(ctx context.Context, targetID string) (bool, error) {
	_, err := s.store.Get(ctx, followingCollection(s.self), targetID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WatchFollowers subscribes to a user's followers collection. The follower
// count is the size of the latest emission; it is never a stored field, so
// it always agrees with the edge records that have actually landed.
func (s *Service) WatchFollowers(ctx context.Context, userID string) (*WatchStream[models.FollowEdge], error) {
	return openWatch(ctx, s.store, store.Query{Collection: followersCollection(userID)}, models.FollowEdgeFromDocument)
}

// WatchFollowing subscribes to a user's following collection.
func (s *Service) WatchFollowing(ctx context.Context, userID string) (*WatchStream[models.FollowEdge], error) {
	return openWatch(ctx, s.store, store.Query{Collection: followingCollection(userID)}, models.FollowEdgeFromDocument)
}

// FollowCounts returns the current follower and following counts for a
// user, each computed as the live size of the subscribed collection.
func (s *Service) FollowCounts(ctx context.Context, userID string) (followers, following int, err error) {
	followerDocs, err := s.snapshot(ctx, store.Query{Collection: followersCollection(userID)})
	if err != nil {
		return 0, 0, err
	}
	followingDocs, err := s.snapshot(ctx, store.Query{Collection: followingCollection(userID)})
	if err != nil {
		return 0, 0, err
	}
	return len(followerDocs), len(followingDocs), nil
}

// FollowListEntry is a follow edge joined with the other user's profile and
// the current user's own follow status toward them.
type FollowListEntry struct {
	models.UserProfile
	IsFollowing bool `json:"is_following"`
}

// Followers lists a user's followers with profiles joined.
func (s *Service) Followers(ctx context.Context, userID string) ([]FollowListEntry, error) {
	return s.followList(ctx, followersCollection(userID))
}

// Following lists the users a user follows, with profiles joined.
func (s *Service) Following(ctx context.Context, userID string) ([]FollowListEntry, error) {
	return s.followList(ctx, followingCollection(userID))
}

func (s *Service) followList(ctx context.Context, collection string) ([]FollowListEntry, error) {
	docs, err := s.snapshot(ctx, store.Query{Collection: collection})
	if err != nil {
		return nil, err
	}

	entries := make([]FollowListEntry, len(docs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxJoinConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			profile, err := s.profileOrPlaceholder(gctx, doc.ID)
			if err != nil {
				return err
			}
			isFollowing := false
			if doc.ID != s.self {
				isFollowing, err = s.IsFollowing(gctx, doc.ID)
				if err != nil {
					return err
				}
			}
			mu.Lock()
			entries[i] = FollowListEntry{UserProfile: profile, IsFollowing: isFollowing}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
