package models

import (
	"time"

	"github.com/pulsefeed/core/internal/store"
)

// Follow edge record field names. A follow relationship is stored as two
// independent records: one under the followed user's followers collection
// and one under the follower's following collection.
const (
	FollowFieldFollowerID = "followerId"
	FollowFieldFollowedID = "followedUserId"
	FollowFieldFollowedAt = "followedAt"
)

// FollowEdge is one half of a follow relationship. UserID is the user on
// the other side of the edge (the record key).
type FollowEdge struct {
	UserID     string     `json:"user_id"`
	FollowedAt *time.Time `json:"followed_at"`
}

// FollowEdgeFromDocument decodes a follower or following record.
func FollowEdgeFromDocument(d store.Document) FollowEdge {
	return FollowEdge{
		UserID:     d.ID,
		FollowedAt: getTime(d.Fields, FollowFieldFollowedAt),
	}
}
