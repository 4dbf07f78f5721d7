package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/skyreader/internal/domain"
)

const (
	// postsBatchSize is the getPosts per-call limit.
	postsBatchSize = 25

	// hydrateConcurrency bounds concurrent getPosts calls.
	hydrateConcurrency = 4
)

// NotificationItem is a notification with its subject post attached when
// one could be loaded.
type NotificationItem struct {
	domain.Notification
	Subject *domain.Post `json:"subject,omitempty"`
}

// NotificationsPage is the view model for one page of notifications.
type NotificationsPage struct {
	Items  []NotificationItem `json:"items"`
	Cursor string             `json:"cursor,omitempty"`
}

// NotificationService lists notifications and hydrates the posts they refer
// to. Subjects are cached across pages until Reset.
type NotificationService struct {
	fetcher domain.NotificationFetcher
	posts   domain.PostFetcher
	logger  *slog.Logger

	mu       sync.Mutex
	subjects map[string]*domain.Post
}

// NewNotificationService creates a notification service.
func NewNotificationService(fetcher domain.NotificationFetcher, posts domain.PostFetcher, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		fetcher:  fetcher,
		posts:    posts,
		logger:   logger,
		subjects: make(map[string]*domain.Post),
	}
}

// Reset drops cached subjects. Called when the list is refreshed from the top.
func (s *NotificationService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.subjects)
}

// LoadPage fetches one page of notifications. Subject hydration failures are
// logged and leave the affected items without a subject.
func (s *NotificationService) LoadPage(ctx context.Context, cursor string) (*NotificationsPage, error) {
	if cursor == "" {
		s.Reset()
	}

	raw, err := s.fetcher.ListNotifications(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	if err := s.hydrate(ctx, missingSubjects(raw.Notifications, s.cached)); err != nil {
		s.logger.Warn("failed to hydrate notification subjects", "error", err)
	}

	page := &NotificationsPage{
		Items:  make([]NotificationItem, 0, len(raw.Notifications)),
		Cursor: raw.Cursor,
	}
	for _, n := range raw.Notifications {
		item := NotificationItem{Notification: n}
		if n.ReasonSubject != "" {
			item.Subject = s.subject(n.ReasonSubject)
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (s *NotificationService) cached(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subjects[uri]
	return ok
}

func (s *NotificationService) subject(uri string) *domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjects[uri]
}

// missingSubjects returns the distinct subject uris worth fetching. Replies
// carry their own record, so their subjects are not needed.
func missingSubjects(notifs []domain.Notification, cached func(string) bool) []string {
	var uris []string
	want := make(map[string]struct{})
	for _, n := range notifs {
		if n.Reason == "reply" || n.ReasonSubject == "" {
			continue
		}
		if _, dup := want[n.ReasonSubject]; dup || cached(n.ReasonSubject) {
			continue
		}
		want[n.ReasonSubject] = struct{}{}
		uris = append(uris, n.ReasonSubject)
	}
	return uris
}

func (s *NotificationService) hydrate(ctx context.Context, uris []string) error {
	if len(uris) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)

	for start := 0; start < len(uris); start += postsBatchSize {
		batch := uris[start:min(start+postsBatchSize, len(uris))]
		g.Go(func() error {
			posts, err := s.posts.Posts(ctx, batch)
			if err != nil {
				return fmt.Errorf("fetching %d subject posts: %w", len(batch), err)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			for i := range posts {
				p := posts[i]
				s.subjects[p.URI] = &p
			}
			return nil
		})
	}
	return g.Wait()
}
