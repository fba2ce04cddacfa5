package core

import (
	"context"
	"fmt"

	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

// ToggleLike flips the current user's membership in the post's likedBy set
// and returns the new state. A not-liked-to-liked transition on someone
// else's post also writes one like notification as a second, independent
// write; unliking never does. If the notification write fails after the
// like landed, the caller gets a PartialWriteError naming the applied side.
func (s *Service) ToggleLike(ctx context.Context, postID string) (bool, error) {
	post, err := s.Post(ctx, postID)
	if err != nil {
		return false, err
	}

	if post.LikedByUser(s.self) {
		err := s.store.Update(ctx, collPosts, postID, []store.UpdateOp{
			{Field: models.PostFieldLikedBy, Kind: store.UpdateArrayRemove, Value: s.self},
		})
		if err != nil {
			return true, fmt.Errorf("removing like: %w", err)
		}
		return false, nil
	}

	err = s.store.Update(ctx, collPosts, postID, []store.UpdateOp{
		{Field: models.PostFieldLikedBy, Kind: store.UpdateArrayUnion, Value: s.self},
	})
	if err != nil {
		return false, fmt.Errorf("adding like: %w", err)
	}

	if post.AuthorID == s.self {
		return true, nil
	}

	// The notification id is derived from the (post, liker) pair, so
	// concurrent toggles racing on the same transition collapse to a
	// single record instead of duplicating it.
	err = s.store.Set(ctx, collNotifications, likeNotificationID(postID, s.self), map[string]interface{}{
		models.NotificationFieldType:      models.NotificationTypeLike,
		models.NotificationFieldPostID:    postID,
		models.NotificationFieldFrom:      s.self,
		models.NotificationFieldTo:        post.AuthorID,
		models.NotificationFieldCreatedAt: store.ServerTimestamp{},
		models.NotificationFieldRead:      false,
	})
	if err != nil {
		return true, &PartialWriteError{
			Op:   "like",
			Done: []string{collPosts + "/" + postID + "/" + models.PostFieldLikedBy},
			Err:  err,
		}
	}
	return true, nil
}

func likeNotificationID(postID, userID string) string {
	return "like-" + postID + "-" + userID
}
