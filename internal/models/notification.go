package models

import (
	"time"

	"github.com/pulsefeed/core/internal/store"
)

// Notification kinds. Consumers must pass through unknown kinds unchanged
// so new ones can be added without touching them.
const (
	NotificationTypeLike = "like"
)

// Notification document field names.
const (
	NotificationFieldType      = "type"
	NotificationFieldPostID    = "postId"
	NotificationFieldFrom      = "fromUserId"
	NotificationFieldTo        = "toUserId"
	NotificationFieldCreatedAt = "createdAt"
	NotificationFieldRead      = "read"
)

// Notification records one engagement event addressed to a user. Only the
// read flag ever changes after creation.
type Notification struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	PostID     string     `json:"post_id"`
	FromUserID string     `json:"from_user_id"`
	ToUserID   string     `json:"to_user_id"`
	CreatedAt  *time.Time `json:"created_at"`
	Read       bool       `json:"read"`
}

// NotificationFromDocument decodes a notification record.
func NotificationFromDocument(d store.Document) Notification {
	return Notification{
		ID:         d.ID,
		Type:       getString(d.Fields, NotificationFieldType),
		PostID:     getString(d.Fields, NotificationFieldPostID),
		FromUserID: getString(d.Fields, NotificationFieldFrom),
		ToUserID:   getString(d.Fields, NotificationFieldTo),
		CreatedAt:  getTime(d.Fields, NotificationFieldCreatedAt),
		Read:       getBool(d.Fields, NotificationFieldRead),
	}
}

// EnrichedNotification is a notification joined with the sender's display
// profile at read time. Derived, never persisted.
type EnrichedNotification struct {
	Notification
	SenderUsername string `json:"sender_username"`
	SenderPhotoURL string `json:"sender_photo_url,omitempty"`
}
