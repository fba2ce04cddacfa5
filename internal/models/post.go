package models

import (
	"time"

	"github.com/pulsefeed/core/internal/store"
)

// Visibility values for a post, fixed at creation.
const (
	VisibilityPublic     = "public"
	VisibilityRestricted = "restricted"
)

// Post document field names.
const (
	PostFieldAuthor     = "userId"
	PostFieldText       = "text"
	PostFieldMediaURL   = "mediaUrl"
	PostFieldVisibility = "visibility"
	PostFieldVisibleTo  = "visibleTo"
	PostFieldGroupID    = "groupId"
	PostFieldLikedBy    = "likedBy"
	PostFieldCreatedAt  = "createdAt"
)

// Post is one content item. Created once by its author; afterwards only
// likedBy membership changes.
type Post struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"user_id"`
	Text       string     `json:"text,omitempty"`
	MediaURL   string     `json:"media_url,omitempty"`
	Visibility string     `json:"visibility"`
	VisibleTo  []string   `json:"visible_to,omitempty"`
	GroupID    string     `json:"group_id,omitempty"`
	LikedBy    []string   `json:"liked_by"`
	CreatedAt  *time.Time `json:"created_at"` // nil until the server assigns it
}

// PostFromDocument decodes a post record.
func PostFromDocument(d store.Document) Post {
	return Post{
		ID:         d.ID,
		AuthorID:   getString(d.Fields, PostFieldAuthor),
		Text:       getString(d.Fields, PostFieldText),
		MediaURL:   getString(d.Fields, PostFieldMediaURL),
		Visibility: getString(d.Fields, PostFieldVisibility),
		VisibleTo:  getStringSlice(d.Fields, PostFieldVisibleTo),
		GroupID:    getString(d.Fields, PostFieldGroupID),
		LikedBy:    getStringSlice(d.Fields, PostFieldLikedBy),
		CreatedAt:  getTime(d.Fields, PostFieldCreatedAt),
	}
}

// LikedByUser reports whether userID is in the post's likedBy set.
func (p Post) LikedByUser(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// EnrichedPost is a post joined with its author's profile and group name at
// read time. Derived, never persisted.
type EnrichedPost struct {
	Post
	Author    UserProfile `json:"author"`
	GroupName string      `json:"group_name,omitempty"`
}

// CreatePostRequest defines the request body for creating a new post
type CreatePostRequest struct {
	Text       string   `json:"text,omitempty" validate:"omitempty,max=280"`
	MediaURL   string   `json:"media_url,omitempty" validate:"omitempty,url"`
	Visibility string   `json:"visibility" validate:"required,oneof=public restricted"`
	VisibleTo  []string `json:"visible_to,omitempty" validate:"omitempty,dive,required"`
	GroupID    string   `json:"group_id,omitempty"`
}
