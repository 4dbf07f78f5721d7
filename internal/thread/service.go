package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/moderation"
)

// Fetch sizes for getPostThread.
const (
	FetchDepth        = 30
	FetchParentHeight = 100
)

var (
	// ErrNotFound is returned when the focal post is deleted or missing.
	ErrNotFound = errors.New("post not found")

	// ErrBlocked is returned when the focal post is hidden by a block.
	ErrBlocked = errors.New("post blocked")
)

// Service loads threads and lays them out.
type Service struct {
	fetcher domain.ThreadFetcher
	memory  *DisclosureMemory
	logger  *slog.Logger

	mu        sync.RWMutex
	moderator moderation.Moderator
}

// NewService creates a thread service with its own disclosure memory.
func NewService(fetcher domain.ThreadFetcher, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		memory:  NewDisclosureMemory(),
		logger:  logger,
	}
}

// SetModerator installs the moderation engine. nil disables filtering.
func (s *Service) SetModerator(m moderation.Moderator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moderator = m
}

// Memory returns the disclosure memory used for layouts.
func (s *Service) Memory() *DisclosureMemory {
	return s.memory
}

// Load fetches the thread around uri and returns its layout. Replies hidden
// by moderation are removed along with everything under them; the focal post
// and its ancestors are always shown.
func (s *Service) Load(ctx context.Context, uri string) (*Layout, error) {
	node, err := s.fetcher.PostThread(ctx, uri, FetchDepth, FetchParentHeight)
	if err != nil {
		return nil, fmt.Errorf("fetching thread: %w", err)
	}
	if node == nil {
		return nil, ErrNotFound
	}
	switch node.Kind {
	case domain.ThreadNotFound:
		return nil, ErrNotFound
	case domain.ThreadBlocked:
		return nil, ErrBlocked
	}

	s.mu.RLock()
	moderator := s.moderator
	s.mu.RUnlock()

	pruned, filtered := Prune(node, moderator)
	layout := Reconstruct(pruned, s.memory)
	layout.Filtered = filtered
	if hide, cause := moderation.CheckSurface(moderator, node.Post, moderation.ContentView); hide {
		if cause == nil {
			cause = &moderation.Cause{Type: "label"}
		}
		layout.Warning = cause
	}

	s.logger.Debug("thread loaded",
		"uri", uri,
		"parents", len(layout.Parents),
		"segments", len(layout.Segments),
		"filtered", filtered,
	)
	return layout, nil
}

// Prune returns a copy of node whose reply tree omits replies the moderator
// filters from content lists, and the number of replies removed (subtrees
// count once). node itself is not modified.
func Prune(node *domain.ThreadNode, m moderation.Moderator) (*domain.ThreadNode, int) {
	if node == nil || m == nil {
		return node, 0
	}
	replies, filtered := pruneReplies(node.Replies, m)
	out := *node
	out.Replies = replies
	return &out, filtered
}

func pruneReplies(replies []*domain.ThreadNode, m moderation.Moderator) ([]*domain.ThreadNode, int) {
	if len(replies) == 0 {
		return replies, 0
	}
	out := make([]*domain.ThreadNode, 0, len(replies))
	filtered := 0
	for _, r := range replies {
		if r == nil {
			continue
		}
		if hide, _ := moderation.Check(m, r.Post); hide {
			filtered++
			continue
		}
		nested, n := pruneReplies(r.Replies, m)
		filtered += n
		c := *r
		c.Replies = nested
		out = append(out, &c)
	}
	return out, filtered
}
