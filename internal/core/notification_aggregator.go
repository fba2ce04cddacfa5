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

// NotificationStream delivers the current user's notifications joined with
// sender profiles, newest first. Join batches run with bounded concurrency;
// a batch superseded by a newer emission before finishing is discarded so a
// stale view never overwrites a fresher one.
type NotificationStream struct {
	cancel  context.CancelFunc
	sub     *store.Subscription
	updates chan []models.EnrichedNotification

	mu      sync.Mutex
	gen     uint64
	applied uint64
	closed  bool
}

// OpenNotifications subscribes to notifications addressed to the current
// user. A previously open stream is closed first.
func (s *Service) OpenNotifications(ctx context.Context) (*NotificationStream, error) {
	q := store.Query{
		Collection: collNotifications,
		Filters: []store.Filter{
			{Field: models.NotificationFieldTo, Op: store.OpEqual, Value: s.self},
		},
		OrderBy:    models.NotificationFieldCreatedAt,
		Descending: true,
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := s.store.Subscribe(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}

	ns := &NotificationStream{
		cancel:  cancel,
		sub:     sub,
		updates: make(chan []models.EnrichedNotification, 1),
	}
	go ns.consume(ctx, s)

	s.mu.Lock()
	if s.notifications != nil {
		s.notifications.Close()
	}
	s.notifications = ns
	s.mu.Unlock()
	return ns, nil
}

// CloseNotifications closes the open notification stream, if any.
func (s *Service) CloseNotifications() {
	s.mu.Lock()
	ns := s.notifications
	s.notifications = nil
	s.mu.Unlock()
	if ns != nil {
		ns.Close()
	}
}

// Updates returns the enriched notification channel. It is closed by Close.
func (ns *NotificationStream) Updates() <-chan []models.EnrichedNotification {
	return ns.updates
}

func (ns *NotificationStream) consume(ctx context.Context, svc *Service) {
	for docs := range ns.sub.Updates() {
		notifs := make([]models.Notification, len(docs))
		for i, d := range docs {
			notifs[i] = models.NotificationFromDocument(d)
		}
		gen := ns.nextGen()

		go func() {
			enriched, err := svc.enrichNotifications(ctx, notifs)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("notifications: joining sender profiles: %v", err)
				}
				return
			}
			ns.deliver(gen, enriched)
		}()
	}
}

func (ns *NotificationStream) nextGen() uint64 {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.gen++
	return ns.gen
}

// deliver publishes a join batch unless a newer generation has already been
// applied. The channel holds only the newest undelivered sequence.
func (ns *NotificationStream) deliver(gen uint64, enriched []models.EnrichedNotification) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed || gen <= ns.applied {
		return
	}
	ns.applied = gen
	select {
	case <-ns.updates:
	default:
	}
	ns.updates <- enriched
}

// Close disposes the subscription and stops delivery, including join
// batches still in flight.
func (ns *NotificationStream) Close() {
	ns.mu.Lock()
	if ns.closed {
		ns.mu.Unlock()
		return
	}
	ns.closed = true
	close(ns.updates)
	ns.mu.Unlock()

	ns.cancel()
	ns.sub.Dispose()
}

// enrichNotifications joins each notification with its sender's profile
// using bounded-concurrency point reads, then orders the result by creation
// time descending. Missing senders degrade to a placeholder profile.
func (s *Service) enrichNotifications(ctx context.Context, notifs []models.Notification) ([]models.EnrichedNotification, error) {
	senderIDs := make(map[string]struct{})
	for _, n := range notifs {
		if n.FromUserID != "" {
			senderIDs[n.FromUserID] = struct{}{}
		}
	}

	var mu sync.Mutex
	senders := make(map[string]models.UserProfile, len(senderIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxJoinConcurrency)
	for id := range senderIDs {
		g.Go(func() error {
			profile, err := s.profileOrPlaceholder(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			senders[id] = profile
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enriched := make([]models.EnrichedNotification, len(notifs))
	for i, n := range notifs {
		sender, ok := senders[n.FromUserID]
		if !ok {
			sender = models.PlaceholderProfile(n.FromUserID)
		}
		enriched[i] = models.EnrichedNotification{
			Notification:   n,
			SenderUsername: sender.Username,
			SenderPhotoURL: sender.PhotoURL,
		}
	}
	sort.Slice(enriched, func(i, j int) bool {
		return notificationBefore(enriched[i].Notification, enriched[j].Notification)
	})
	return enriched, nil
}

func notificationBefore(a, b models.Notification) bool {
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

// MarkNotificationRead flips one notification's read flag.
func (s *Service) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return s.store.Update(ctx, collNotifications, notificationID, []store.UpdateOp{
		{Field: models.NotificationFieldRead, Kind: store.UpdateSet, Value: true},
	})
}

// MarkAllNotificationsRead flips the read flag on every unread notification
// addressed to the current user.
func (s *Service) MarkAllNotificationsRead(ctx context.Context) error {
	docs, err := s.snapshot(ctx, store.Query{
		Collection: collNotifications,
		Filters: []store.Filter{
			{Field: models.NotificationFieldTo, Op: store.OpEqual, Value: s.self},
		},
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if models.NotificationFromDocument(doc).Read {
			continue
		}
		if err := s.MarkNotificationRead(ctx, doc.ID); err != nil {
			return err
		}
	}
	return nil
}
