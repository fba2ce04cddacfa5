package models

import (
	"time"

	"github.com/pulsefeed/core/internal/store"
)

// Group document field names.
const (
	GroupFieldName      = "name"
	GroupFieldMembers   = "members"
	GroupFieldCreatedBy = "createdBy"
	GroupFieldCreatedAt = "createdAt"
)

// PlaceholderGroupName stands in when a post's group record is missing.
const PlaceholderGroupName = "Unnamed Group"

// Group is a membership set whose posts form one feed source.
type Group struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Members   []string   `json:"members"`
	CreatedBy string     `json:"created_by"`
	CreatedAt *time.Time `json:"created_at"`
}

// GroupFromDocument decodes a group record.
func GroupFromDocument(d store.Document) Group {
	return Group{
		ID:        d.ID,
		Name:      getString(d.Fields, GroupFieldName),
		Members:   getStringSlice(d.Fields, GroupFieldMembers),
		CreatedBy: getString(d.Fields, GroupFieldCreatedBy),
		CreatedAt: getTime(d.Fields, GroupFieldCreatedAt),
	}
}

// CreateGroupRequest defines the request body for creating a group
type CreateGroupRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=50"`
	Members []string `json:"members" validate:"required,min=1,dive,required"`
}
