package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/moderation"
	"github.com/blackmichael/skyreader/internal/seen"
)

var (
	// ErrStalePage is returned when a page arrives after its view was reset
	// or abandoned. The page is discarded without touching the seen cache.
	ErrStalePage = errors.New("stale feed page")

	// ErrUnknownSource is returned for a source kind the service cannot load.
	ErrUnknownSource = errors.New("unknown feed source")
)

// SourceKind identifies where a feed comes from.
type SourceKind string

const (
	SourceTimeline SourceKind = "timeline"
	SourceAuthor   SourceKind = "author"
	SourceCustom   SourceKind = "feed"
	SourceList     SourceKind = "list"
	SourceSearch   SourceKind = "search"
)

// Author feed views.
const (
	ViewPosts   = ""
	ViewReplies = "replies"
	ViewMedia   = "media"
)

// Source describes one feed view.
type Source struct {
	Kind SourceKind

	// Actor and View are used by SourceAuthor.
	Actor string
	View  string

	// URI is the feed generator or list AT-URI.
	URI string

	// Query is used by SourceSearch.
	Query string
}

// Context returns the seen-cache context id of the source.
func (s Source) Context() string {
	switch s.Kind {
	case SourceTimeline:
		return "timeline"
	case SourceAuthor:
		return fmt.Sprintf("profile-%s-%s", s.Actor, s.View)
	case SourceSearch:
		return "search-" + s.Query
	default:
		return string(s.Kind) + "-" + s.URI
	}
}

// Massaged reports whether pages of the source go through the massager.
// Only following-based views are; algorithmic feeds and search results are
// shown as the server ranked them.
func (s Source) Massaged() bool {
	return s.Kind == SourceTimeline || s.Kind == SourceAuthor
}

// Filter maps the author feed view to the server-side filter, and reports
// whether pinned posts are requested.
func (s Source) Filter() (domain.AuthorFeedFilter, bool) {
	switch s.View {
	case ViewReplies:
		return domain.FilterPostsWithReplies, false
	case ViewMedia:
		return domain.FilterPostsWithMedia, false
	default:
		return domain.FilterPostsAndAuthorThreads, true
	}
}

// LoadOptions controls a single page load.
type LoadOptions struct {
	Cursor string

	// Reset marks the first page of a fresh load: the view's seen cache is
	// cleared and earlier in-flight pages become stale.
	Reset bool

	// Group pulls reposts into sub-feed groups.
	Group bool
}

// Page is the view model for one page.
type Page struct {
	Items []Item `json:"items"`

	// Cursor is empty at the end of the feed.
	Cursor string `json:"cursor,omitempty"`

	// Filtered is the number of entries hidden by moderation.
	Filtered int `json:"filtered"`
}

// Recorder receives pipeline measurements.
type Recorder interface {
	PageLoaded(source string, entries, kept int)
	EntriesDropped(reason string, n int)
	StalePage(source string)
}

type nopRecorder struct{}

func (nopRecorder) PageLoaded(string, int, int) {}
func (nopRecorder) EntriesDropped(string, int)  {}
func (nopRecorder) StalePage(string)            {}

// contextState serialises massaging for one view and tracks its generation.
type contextState struct {
	mu  sync.Mutex
	gen atomic.Uint64
}

// Service loads feed pages and runs them through massaging, moderation and
// optional repost grouping.
type Service struct {
	fetcher  domain.FeedFetcher
	massager *Massager
	logger   *slog.Logger
	metrics  Recorder

	mu        sync.RWMutex
	moderator moderation.Moderator
	viewerDID string
	contexts  map[string]*contextState
}

// NewService creates a feed service. A nil recorder disables metrics.
func NewService(fetcher domain.FeedFetcher, registry *seen.Registry, logger *slog.Logger, metrics Recorder) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		fetcher:  fetcher,
		massager: NewMassager(registry),
		logger:   logger,
		metrics:  metrics,
		contexts: make(map[string]*contextState),
	}
}

// SetModerator installs the moderation engine. nil disables filtering.
func (s *Service) SetModerator(m moderation.Moderator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moderator = m
}

// SetViewer sets the signed-in account DID, or "" for anonymous sessions.
func (s *Service) SetViewer(did string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewerDID = did
}

func (s *Service) viewer() (moderation.Moderator, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.moderator, s.viewerDID
}

func (s *Service) state(ctxID string) *contextState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.contexts[ctxID]
	if !ok {
		st = &contextState{}
		s.contexts[ctxID] = st
	}
	return st
}

// Abandon makes every in-flight page of src stale, e.g. when its view is closed.
func (s *Service) Abandon(src Source) {
	s.state(src.Context()).gen.Add(1)
}

// LoadPage fetches and processes one page of src.
func (s *Service) LoadPage(ctx context.Context, src Source, opts LoadOptions) (*Page, error) {
	ctxID := src.Context()
	st := s.state(ctxID)

	gen := st.gen.Load()
	if opts.Reset {
		gen = st.gen.Add(1)
	}

	raw, err := s.fetch(ctx, src, opts.Cursor)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.gen.Load() != gen {
		s.metrics.StalePage(string(src.Kind))
		s.logger.Debug("discarding stale page", "context", ctxID)
		return nil, ErrStalePage
	}

	moderator, viewerDID := s.viewer()

	entries := raw.Entries
	if src.Massaged() {
		var stats MassageStats
		entries, stats = s.massager.Massage(entries, ctxID, opts.Reset, viewerDID)
		s.recordStats(stats)
		s.logger.Debug("massaged page",
			"context", ctxID,
			"input", stats.Input,
			"kept", stats.Kept,
			"duplicate", stats.Duplicate,
			"unfollowed", stats.Unfollowed,
			"blocked", stats.Blocked,
			"seen", s.massager.seen.For(ctxID).Len(),
		)
	}

	page := &Page{Cursor: raw.Cursor}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if filtered, cause := moderation.Check(moderator, e.Post); filtered {
			page.Filtered++
			name := ""
			if cause != nil {
				name = cause.Name()
			}
			s.logger.Debug("post filtered by moderation", "uri", e.Post.URI, "cause", name)
			continue
		}
		items = append(items, NewItem(e))
	}
	if page.Filtered > 0 {
		s.metrics.EntriesDropped("moderation", page.Filtered)
	}

	if opts.Group {
		items = GroupReposts(items)
	}
	page.Items = items

	s.metrics.PageLoaded(string(src.Kind), len(raw.Entries), len(items))
	return page, nil
}

func (s *Service) fetch(ctx context.Context, src Source, cursor string) (*domain.FeedPage, error) {
	var (
		page *domain.FeedPage
		err  error
	)
	switch src.Kind {
	case SourceTimeline:
		page, err = s.fetcher.Timeline(ctx, cursor)
	case SourceAuthor:
		filter, pins := src.Filter()
		page, err = s.fetcher.AuthorFeed(ctx, src.Actor, filter, pins, cursor)
	case SourceCustom:
		page, err = s.fetcher.CustomFeed(ctx, src.URI, cursor)
	case SourceList:
		page, err = s.fetcher.ListFeed(ctx, src.URI, cursor)
	case SourceSearch:
		page, err = s.fetcher.SearchPosts(ctx, src.Query, cursor)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s page: %w", src.Kind, err)
	}
	if page == nil {
		page = &domain.FeedPage{}
	}
	return page, nil
}

func (s *Service) recordStats(stats MassageStats) {
	for reason, n := range map[string]int{
		"malformed":  stats.Malformed,
		"blocked":    stats.Blocked,
		"unfollowed": stats.Unfollowed,
		"duplicate":  stats.Duplicate,
	} {
		if n > 0 {
			s.metrics.EntriesDropped(reason, n)
		}
	}
}
