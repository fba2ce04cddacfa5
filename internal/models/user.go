package models

import "github.com/pulsefeed/core/internal/store"

// User document field names.
const (
	UserFieldUsername = "username"
	UserFieldPhotoURL = "photoURL"
)

// PlaceholderUsername stands in for senders and authors whose profile
// record cannot be found. Lookups degrade to it instead of failing a join.
const PlaceholderUsername = "Unknown"

// UserProfile is the display profile attached to posts and notifications.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// UserProfileFromDocument decodes a user record.
func UserProfileFromDocument(d store.Document) UserProfile {
	return UserProfile{
		ID:       d.ID,
		Username: getString(d.Fields, UserFieldUsername),
		PhotoURL: getString(d.Fields, UserFieldPhotoURL),
	}
}

// PlaceholderProfile returns the degraded profile used when the user record
// is missing.
func PlaceholderProfile(userID string) UserProfile {
	return UserProfile{ID: userID, Username: PlaceholderUsername}
}

// UpdateProfileRequest defines the request body for editing the profile
type UpdateProfileRequest struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,url"`
}
