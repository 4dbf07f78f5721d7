package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/blackmichael/skyreader/internal/bluesky"
	"github.com/blackmichael/skyreader/internal/config"
	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/feed"
	"github.com/blackmichael/skyreader/internal/metrics"
	"github.com/blackmichael/skyreader/internal/postmeta"
	"github.com/blackmichael/skyreader/internal/thread"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxMetaWait bounds how long GET /api/posts/meta holds a request open.
const maxMetaWait = 25 * time.Second

// FeedLoader loads massaged, moderated feed pages. Abandon discards pages
// still in flight for a view the client has left.
type FeedLoader interface {
	LoadPage(ctx context.Context, src feed.Source, opts feed.LoadOptions) (*feed.Page, error)
	Abandon(src feed.Source)
}

// ThreadLoader loads thread layouts and remembers disclosure choices.
type ThreadLoader interface {
	Load(ctx context.Context, uri string) (*thread.Layout, error)
	Memory() *thread.DisclosureMemory
}

// NotificationLoader loads notification pages.
type NotificationLoader interface {
	LoadPage(ctx context.Context, cursor string) (*feed.NotificationsPage, error)
}

// MutationRunner performs optimistic likes and reposts.
type MutationRunner interface {
	Like(ctx context.Context, t postmeta.Target) (postmeta.Meta, error)
	Unlike(ctx context.Context, t postmeta.Target) (postmeta.Meta, error)
	Repost(ctx context.Context, t postmeta.Target) (postmeta.Meta, error)
	Unrepost(ctx context.Context, t postmeta.Target) (postmeta.Meta, error)
	ToggleLike(ctx context.Context, t postmeta.Target) (postmeta.Meta, error)
	ToggleRepost(ctx context.Context, t postmeta.Target) (postmeta.Meta, error)
}

// Deps are the services behind the API. Metrics may be nil.
type Deps struct {
	Feeds         FeedLoader
	Threads       ThreadLoader
	Notifications NotificationLoader
	Posts         domain.PostFetcher
	Meta          *postmeta.Store
	Mutations     MutationRunner
	Metrics       *metrics.Metrics
}

// Server is the HTTP server that serves the reader's JSON view-model API.
type Server struct {
	cfg        *config.Config
	deps       Deps
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server over deps.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/profile/{actor}/feed", s.handleProfileFeed)
	mux.HandleFunc("GET /api/feed", s.handleCustomFeed)
	mux.HandleFunc("GET /api/list", s.handleListFeed)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/thread", s.handleThread)
	mux.HandleFunc("POST /api/thread/disclosure", s.handleDisclosure)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/posts/meta", s.handlePostMeta)
	mux.HandleFunc("POST /api/posts/like", s.handleMutation(deps.Mutations.Like))
	mux.HandleFunc("DELETE /api/posts/like", s.handleMutation(deps.Mutations.Unlike))
	mux.HandleFunc("POST /api/posts/repost", s.handleMutation(deps.Mutations.Repost))
	mux.HandleFunc("DELETE /api/posts/repost", s.handleMutation(deps.Mutations.Unrepost))
	mux.HandleFunc("POST /api/posts/like/toggle", s.handleMutation(deps.Mutations.ToggleLike))
	mux.HandleFunc("POST /api/posts/repost/toggle", s.handleMutation(deps.Mutations.ToggleRepost))

	s.handler = withLogging(logger, deps.Metrics, mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: maxMetaWait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, feed.Source{Kind: feed.SourceTimeline})
}

func (s *Server) handleProfileFeed(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	switch view {
	case feed.ViewPosts, feed.ViewReplies, feed.ViewMedia:
	default:
		writeError(w, http.StatusBadRequest, "InvalidRequest", "view must be one of replies, media or empty")
		return
	}
	s.serveFeed(w, r, feed.Source{Kind: feed.SourceAuthor, Actor: r.PathValue("actor"), View: view})
}

func (s *Server) handleCustomFeed(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireParam(w, r, "uri")
	if !ok {
		return
	}
	s.serveFeed(w, r, feed.Source{Kind: feed.SourceCustom, URI: uri})
}

func (s *Server) handleListFeed(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireParam(w, r, "uri")
	if !ok {
		return
	}
	s.serveFeed(w, r, feed.Source{Kind: feed.SourceList, URI: uri})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := requireParam(w, r, "q")
	if !ok {
		return
	}
	s.serveFeed(w, r, feed.Source{Kind: feed.SourceSearch, Query: q})
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, src feed.Source) {
	query := r.URL.Query()
	opts := feed.LoadOptions{
		Cursor: query.Get("cursor"),
		Group:  s.cfg.GroupReposts,
	}
	var err error
	if opts.Reset, err = boolParam(query.Get("reset"), false); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "reset must be a boolean")
		return
	}
	if opts.Group, err = boolParam(query.Get("group"), opts.Group); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "group must be a boolean")
		return
	}

	page, err := s.deps.Feeds.LoadPage(r.Context(), src, opts)
	if err != nil && r.Context().Err() != nil {
		// The client went away; nothing still loading for this view applies.
		s.deps.Feeds.Abandon(src)
		s.logger.DebugContext(r.Context(), "feed view abandoned", "context", src.Context())
		return
	}
	if err != nil {
		s.writeFailure(w, r, "failed to load feed", err, "context", src.Context())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireParam(w, r, "uri")
	if !ok {
		return
	}
	layout, err := s.deps.Threads.Load(r.Context(), uri)
	if err != nil {
		s.writeFailure(w, r, "failed to load thread", err, "uri", uri)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

type disclosureRequest struct {
	Branch string `json:"branch"`
	Focal  string `json:"focal"`
	Open   bool   `json:"open"`
}

func (s *Server) handleDisclosure(w http.ResponseWriter, r *http.Request) {
	var req disclosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
		return
	}
	if req.Branch == "" || req.Focal == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "branch and focal are required")
		return
	}
	s.deps.Threads.Memory().Set(req.Branch, req.Focal, req.Open)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Notifications.LoadPage(r.Context(), r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeFailure(w, r, "failed to load notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type metaResponse struct {
	URI  string        `json:"uri"`
	Meta postmeta.Meta `json:"meta"`
}

// handlePostMeta returns the overlay for a post. With wait, it holds the
// request until the overlay changes or wait elapses.
func (s *Server) handlePostMeta(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireParam(w, r, "uri")
	if !ok {
		return
	}
	var wait time.Duration
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "wait must be a positive duration")
			return
		}
		wait = min(d, maxMetaWait)
	}

	post, err := s.fetchPost(r.Context(), uri)
	if err != nil {
		s.writeFailure(w, r, "failed to load post", err, "uri", uri)
		return
	}
	fallback := postmeta.FromPost(post)

	if wait == 0 {
		writeJSON(w, http.StatusOK, metaResponse{URI: uri, Meta: s.deps.Meta.Get(uri, fallback)})
		return
	}

	sub := s.deps.Meta.Subscribe(uri, fallback)
	defer sub.Close()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-sub.Updates():
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, metaResponse{URI: uri, Meta: sub.Meta()})
}

type mutationRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleMutation(run func(context.Context, postmeta.Target) (postmeta.Meta, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URI == "" {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be {\"uri\": <post uri>}")
			return
		}

		post, err := s.fetchPost(r.Context(), req.URI)
		if err != nil {
			s.writeFailure(w, r, "failed to load post", err, "uri", req.URI)
			return
		}

		meta, err := run(r.Context(), postmeta.Target{
			URI:     post.URI,
			CID:     post.CID,
			Current: postmeta.FromPost(post),
		})
		if err != nil {
			s.writeFailure(w, r, "mutation failed", err, "uri", req.URI)
			return
		}
		writeJSON(w, http.StatusOK, metaResponse{URI: post.URI, Meta: meta})
	}
}

var errPostNotFound = errors.New("post not found")

func (s *Server) fetchPost(ctx context.Context, uri string) (*domain.Post, error) {
	posts, err := s.deps.Posts.Posts(ctx, []string{uri})
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].URI == uri {
			return &posts[i], nil
		}
	}
	return nil, errPostNotFound
}

// writeFailure maps service errors to API errors and logs the unexpected ones.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, msg string, err error, attrs ...any) {
	status, errType := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), msg, append(attrs, "error", err)...)
	} else {
		s.logger.WarnContext(r.Context(), msg, append(attrs, "error", err)...)
	}
	writeError(w, status, errType, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, feed.ErrStalePage):
		return http.StatusConflict, "StalePage"
	case errors.Is(err, feed.ErrUnknownSource):
		return http.StatusBadRequest, "InvalidRequest"
	case errors.Is(err, postmeta.ErrPending):
		return http.StatusConflict, "MutationPending"
	case errors.Is(err, postmeta.ErrNotCommitted):
		return http.StatusConflict, "NotCommitted"
	case errors.Is(err, thread.ErrBlocked):
		return http.StatusForbidden, "Blocked"
	case errors.Is(err, thread.ErrNotFound), errors.Is(err, errPostNotFound), bluesky.IsNotFound(err):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, bluesky.ErrNotAuthenticated), bluesky.IsAuthError(err):
		return http.StatusUnauthorized, "AuthRequired"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	default:
		return http.StatusBadGateway, "UpstreamError"
	}
}

func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", name+" parameter is required")
		return "", false
	}
	return v, true
}

func boolParam(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", elapsed,
		)
		if m != nil {
			// The route pattern keeps label cardinality bounded.
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, wrapped.status, elapsed)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
