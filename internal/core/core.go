package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

// Collection names at the store boundary.
const (
	collPosts         = "posts"
	collUsers         = "users"
	collGroups        = "groups"
	collNotifications = "notifications"
)

// maxJoinConcurrency bounds the point-read joins run per emission.
const maxJoinConcurrency = 4

// Service is the session context handed to every operation: one store
// handle plus the current identity. Constructed per session, never shared
// as process-wide state.
type Service struct {
	store store.Store
	self  string

	mu            sync.Mutex
	feeds         map[string]*FeedStream
	notifications *NotificationStream
}

// NewService creates a Service for the given identity.
func NewService(st store.Store, self string) *Service {
	return &Service{
		store: st,
		self:  self,
		feeds: make(map[string]*FeedStream),
	}
}

// Self returns the current identity.
func (s *Service) Self() string {
	return s.self
}

// snapshot opens a one-shot live query and returns its first emission.
func (s *Service) snapshot(ctx context.Context, q store.Query) ([]store.Document, error) {
	sub, err := s.store.Subscribe(ctx, q)
	if err != nil {
		return nil, err
	}
	defer sub.Dispose()

	select {
	case docs, ok := <-sub.Updates():
		if !ok {
			return nil, ctx.Err()
		}
		return docs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WatchStream delivers decoded snapshots of one live query. The channel
// holds only the newest undelivered snapshot and is closed on Dispose.
type WatchStream[T any] struct {
	sub     *store.Subscription
	updates chan []T
}

func openWatch[T any](ctx context.Context, st store.Store, q store.Query, decode func(store.Document) T) (*WatchStream[T], error) {
	sub, err := st.Subscribe(ctx, q)
	if err != nil {
		return nil, err
	}

	w := &WatchStream[T]{sub: sub, updates: make(chan []T, 1)}
	go func() {
		defer close(w.updates)
		for docs := range sub.Updates() {
			decoded := make([]T, len(docs))
			for i, d := range docs {
				decoded[i] = decode(d)
			}
			select {
			case <-w.updates:
			default:
			}
			w.updates <- decoded
		}
	}()
	return w, nil
}

// Updates returns the snapshot channel.
func (w *WatchStream[T]) Updates() <-chan []T {
	return w.updates
}

// Dispose stops the underlying subscription and closes the channel.
func (w *WatchStream[T]) Dispose() {
	w.sub.Dispose()
}

// CreatePost writes a new post. The creation timestamp is server-assigned,
// so the record shows a pending timestamp until the write commits.
func (s *Service) CreatePost(ctx context.Context, req models.CreatePostRequest) (string, error) {
	visibleTo := req.VisibleTo
	if req.Visibility == models.VisibilityRestricted && !containsID(visibleTo, s.self) {
		visibleTo = append(append([]string{}, visibleTo...), s.self)
	}

	fields := map[string]interface{}{
		models.PostFieldAuthor:     s.self,
		models.PostFieldVisibility: req.Visibility,
		models.PostFieldLikedBy:    []string{},
		models.PostFieldCreatedAt:  store.ServerTimestamp{},
	}
	if req.Text != "" {
		fields[models.PostFieldText] = req.Text
	}
	if req.MediaURL != "" {
		fields[models.PostFieldMediaURL] = req.MediaURL
	}
	if len(visibleTo) > 0 {
		fields[models.PostFieldVisibleTo] = visibleTo
	}
	if req.GroupID != "" {
		fields[models.PostFieldGroupID] = req.GroupID
	}

	id, err := s.store.Add(ctx, collPosts, fields)
	if err != nil {
		return "", fmt.Errorf("creating post: %w", err)
	}
	return id, nil
}

// Post performs a point read of one post.
func (s *Service) Post(ctx context.Context, postID string) (models.Post, error) {
	doc, err := s.store.Get(ctx, collPosts, postID)
	if err != nil {
		return models.Post{}, err
	}
	return models.PostFromDocument(doc), nil
}

// Profile performs a point read of one user's display profile.
func (s *Service) Profile(ctx context.Context, userID string) (models.UserProfile, error) {
	doc, err := s.store.Get(ctx, collUsers, userID)
	if err != nil {
		return models.UserProfile{}, err
	}
	return models.UserProfileFromDocument(doc), nil
}

// profileOrPlaceholder degrades a missing profile record to a placeholder
// instead of failing the join that needs it.
func (s *Service) profileOrPlaceholder(ctx context.Context, userID string) (models.UserProfile, error) {
	profile, err := s.Profile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PlaceholderProfile(userID), nil
	}
	if err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// UpdateProfile writes the current user's display profile.
func (s *Service) UpdateProfile(ctx context.Context, req models.UpdateProfileRequest) error {
	fields := map[string]interface{}{
		models.UserFieldUsername: req.Username,
	}
	if req.PhotoURL != "" {
		fields[models.UserFieldPhotoURL] = req.PhotoURL
	}
	return s.store.Set(ctx, collUsers, s.self, fields)
}

func (s *Service) groupsQuery() store.Query {
	return store.Query{
		Collection: collGroups,
		Filters: []store.Filter{
			{Field: models.GroupFieldMembers, Op: store.OpArrayContains, Value: s.self},
		},
	}
}

// WatchGroups subscribes to the groups the current user belongs to.
func (s *Service) WatchGroups(ctx context.Context) (*WatchStream[models.Group], error) {
	return openWatch(ctx, s.store, s.groupsQuery(), models.GroupFromDocument)
}

// Groups returns the groups the current user belongs to.
func (s *Service) Groups(ctx context.Context) ([]models.Group, error) {
	docs, err := s.snapshot(ctx, s.groupsQuery())
	if err != nil {
		return nil, err
	}
	groups := make([]models.Group, len(docs))
	for i, d := range docs {
		groups[i] = models.GroupFromDocument(d)
	}
	return groups, nil
}

// GroupIDs returns the ids of the groups the current user belongs to.
func (s *Service) GroupIDs(ctx context.Context) ([]string, error) {
	docs, err := s.snapshot(ctx, s.groupsQuery())
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// CreateGroup creates a group containing the given members plus the
// current user.
func (s *Service) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (string, error) {
	members := req.Members
	if !containsID(members, s.self) {
		members = append(append([]string{}, members...), s.self)
	}
	return s.store.Add(ctx, collGroups, map[string]interface{}{
		models.GroupFieldName:      req.Name,
		models.GroupFieldMembers:   members,
		models.GroupFieldCreatedBy: s.self,
		models.GroupFieldCreatedAt: store.ServerTimestamp{},
	})
}

// groupName resolves a group's display name, degrading to a placeholder
// when the record is missing or unnamed.
func (s *Service) groupName(ctx context.Context, groupID string) (string, error) {
	doc, err := s.store.Get(ctx, collGroups, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PlaceholderGroupName, nil
	}
	if err != nil {
		return "", err
	}
	group := models.GroupFromDocument(doc)
	if group.Name == "" {
		return models.PlaceholderGroupName, nil
	}
	return group.Name, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
