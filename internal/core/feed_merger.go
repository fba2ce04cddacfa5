package core

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
	"golang.org/x/sync/errgroup"
)

// Source is one live query feeding a feed scope.
type Source struct {
	Name  string
	Query store.Query
}

// Scope is the set of sources that together define one feed view.
type Scope struct {
	Name    string
	Sources []Source
}

func postsQuery(filters ...store.Filter) store.Query {
	return store.Query{
		Collection: collPosts,
		Filters:    filters,
		OrderBy:    models.PostFieldCreatedAt,
		Descending: true,
	}
}

// HomeScope builds the main feed: public posts, posts shared with the user,
// and one source per joined group.
func HomeScope(self string, groupIDs []string) Scope {
	sources := []Source{
		{
			Name:  "public",
			Query: postsQuery(store.Filter{Field: models.PostFieldVisibility, Op: store.OpEqual, Value: models.VisibilityPublic}),
		},
		{
			Name:  "restricted",
			Query: postsQuery(store.Filter{Field: models.PostFieldVisibleTo, Op: store.OpArrayContains, Value: self}),
		},
	}
	for _, groupID := range groupIDs {
		sources = append(sources, Source{
			Name:  "group:" + groupID,
			Query: postsQuery(store.Filter{Field: models.PostFieldGroupID, Op: store.OpEqual, Value: groupID}),
		})
	}
	return Scope{Name: "home", Sources: sources}
}

// GroupScope builds a single group's feed.
func GroupScope(groupID string) Scope {
	return Scope{
		Name: "group:" + groupID,
		Sources: []Source{
			{
				Name:  "group:" + groupID,
				Query: postsQuery(store.Filter{Field: models.PostFieldGroupID, Op: store.OpEqual, Value: groupID}),
			},
		},
	}
}

// FeedStream merges the latest snapshot from every source of one scope into
// a deduplicated, ordered, enriched sequence. Each emission replaces that
// source's slot wholesale; the merged view is recomputed under a new
// generation and enrichment batches that lose the race are discarded.
type FeedStream struct {
	scope   Scope
	cancel  context.CancelFunc
	subs    []*store.Subscription
	updates chan []models.EnrichedPost

	mu      sync.Mutex
	slots   map[string][]models.Post
	gen     uint64
	applied uint64
	closed  bool
}

// OpenFeed opens one subscription per source in the scope and starts
// merging. A previously open stream under the same scope name is closed.
func (s *Service) OpenFeed(ctx context.Context, scope Scope) (*FeedStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	fs := &FeedStream{
		scope:   scope,
		cancel:  cancel,
		slots:   make(map[string][]models.Post),
		updates: make(chan []models.EnrichedPost, 1),
	}

	for _, src := range scope.Sources {
		sub, err := s.store.Subscribe(ctx, src.Query)
		if err != nil {
			fs.Close()
			return nil, err
		}
		fs.subs = append(fs.subs, sub)
		go fs.consume(ctx, s, src.Name, sub)
	}

	s.mu.Lock()
	if prev, ok := s.feeds[scope.Name]; ok {
		prev.Close()
	}
	s.feeds[scope.Name] = fs
	s.mu.Unlock()
	return fs, nil
}

// CloseFeed closes the feed stream registered under the scope name.
func (s *Service) CloseFeed(name string) {
	s.mu.Lock()
	fs := s.feeds[name]
	delete(s.feeds, name)
	s.mu.Unlock()
	if fs != nil {
		fs.Close()
	}
}

// Updates returns the merged feed channel. It is closed by Close.
func (f *FeedStream) Updates() <-chan []models.EnrichedPost {
	return f.updates
}

// Scope returns the scope this stream was opened for.
func (f *FeedStream) Scope() Scope {
	return f.scope
}

func (f *FeedStream) consume(ctx context.Context, svc *Service, source string, sub *store.Subscription) {
	for docs := range sub.Updates() {
		posts := make([]models.Post, len(docs))
		for i, d := range docs {
			posts[i] = models.PostFromDocument(d)
		}
		merged, gen := f.setSlot(source, posts)

		go func() {
			enriched, err := svc.enrichPosts(ctx, merged)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("feed %s: enriching merged view: %v", f.scope.Name, err)
				}
				return
			}
			f.deliver(gen, enriched)
		}()
	}
}

// setSlot replaces one source's snapshot wholesale and recomputes the
// merged view under a new generation.
func (f *FeedStream) setSlot(source string, posts []models.Post) ([]models.Post, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[source] = posts
	f.gen++
	return mergeSlots(f.slots), f.gen
}

// deliver publishes an enriched merge unless a newer generation has already
// been applied. The channel holds only the newest undelivered sequence.
func (f *FeedStream) deliver(gen uint64, enriched []models.EnrichedPost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || gen <= f.applied {
		return
	}
	f.applied = gen
	select {
	case <-f.updates:
	default:
	}
	f.updates <- enriched
}

// Close disposes every source subscription and stops delivery, including
// enrichment batches still in flight.
func (f *FeedStream) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.updates)
	f.mu.Unlock()

	f.cancel()
	for _, sub := range f.subs {
		sub.Dispose()
	}
}

// mergeSlots unions all slots by post id and orders the result by creation
// time descending. Posts whose timestamp the server has not assigned yet
// sort first; equal timestamps tie-break on id ascending.
func mergeSlots(slots map[string][]models.Post) []models.Post {
	byID := make(map[string]models.Post)
	for _, posts := range slots {
		for _, p := range posts {
			byID[p.ID] = p
		}
	}

	merged := make([]models.Post, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool {
		return postBefore(merged[i], merged[j])
	})
	return merged
}

func postBefore(a, b models.Post) bool {
	switch {
	case a.CreatedAt == nil && b.CreatedAt == nil:
		return a.ID < b.ID
	case a.CreatedAt == nil:
		return true
	case b.CreatedAt == nil:
		return false
	case a.CreatedAt.Equal(*b.CreatedAt):
		return a.ID < b.ID
	default:
		return a.CreatedAt.After(*b.CreatedAt)
	}
}

// enrichPosts joins each post with its author profile and group name using
// bounded-concurrency point reads. Missing records degrade to placeholders.
func (s *Service) enrichPosts(ctx context.Context, posts []models.Post) ([]models.EnrichedPost, error) {
	authorIDs := make(map[string]struct{})
	groupIDs := make(map[string]struct{})
	for _, p := range posts {
		if p.AuthorID != "" {
			authorIDs[p.AuthorID] = struct{}{}
		}
		if p.GroupID != "" {
			groupIDs[p.GroupID] = struct{}{}
		}
	}

	var mu sync.Mutex
	authors := make(map[string]models.UserProfile, len(authorIDs))
	groupNames := make(map[string]string, len(groupIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxJoinConcurrency)
	for id := range authorIDs {
		g.Go(func() error {
			profile, err := s.profileOrPlaceholder(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			authors[id] = profile
			mu.Unlock()
			return nil
		})
	}
	for id := range groupIDs {
		g.Go(func() error {
			name, err := s.groupName(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			groupNames[id] = name
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enriched := make([]models.EnrichedPost, len(posts))
	for i, p := range posts {
		enriched[i] = models.EnrichedPost{
			Post:      p,
			Author:    authors[p.AuthorID],
			GroupName: groupNames[p.GroupID],
		}
	}
	return enriched, nil
}
