package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skyreader/internal/config"
	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/feed"
	"github.com/blackmichael/skyreader/internal/metrics"
	"github.com/blackmichael/skyreader/internal/postmeta"
	"github.com/blackmichael/skyreader/internal/thread"
)

const (
	postURI  = "at://did:plc:alice/app.bsky.feed.post/3kabc"
	likedURI = "at://did:plc:alice/app.bsky.feed.post/3kliked"
)

type fakeFeeds struct {
	mu        sync.Mutex
	src       feed.Source
	opts      feed.LoadOptions
	page      *feed.Page
	err       error
	abandoned []feed.Source
}

func (f *fakeFeeds) LoadPage(ctx context.Context, src feed.Source, opts feed.LoadOptions) (*feed.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.src, f.opts = src, opts
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeFeeds) Abandon(src feed.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, src)
}

type fakeThreads struct {
	layout *thread.Layout
	err    error
	memory *thread.DisclosureMemory
}

func (f *fakeThreads) Load(context.Context, string) (*thread.Layout, error) {
	return f.layout, f.err
}

func (f *fakeThreads) Memory() *thread.DisclosureMemory { return f.memory }

type fakeNotifications struct {
	cursor string
	page   *feed.NotificationsPage
}

func (f *fakeNotifications) LoadPage(_ context.Context, cursor string) (*feed.NotificationsPage, error) {
	f.cursor = cursor
	return f.page, nil
}

type fakePosts map[string]domain.Post

func (f fakePosts) Posts(_ context.Context, uris []string) ([]domain.Post, error) {
	var out []domain.Post
	for _, u := range uris {
		if p, ok := f[u]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeMutator struct {
	err error
}

func (f *fakeMutator) Like(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "at://did:plc:viewer/app.bsky.feed.like/3klike", nil
}

func (f *fakeMutator) DeleteLike(context.Context, string) error { return f.err }

func (f *fakeMutator) Repost(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "at://did:plc:viewer/app.bsky.feed.repost/3krepost", nil
}

func (f *fakeMutator) DeleteRepost(context.Context, string) error { return f.err }

type fixture struct {
	server   *Server
	feeds    *fakeFeeds
	threads  *fakeThreads
	notifs   *fakeNotifications
	store    *postmeta.Store
	mutator  *fakeMutator
	registry *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		feeds:    &fakeFeeds{page: &feed.Page{Items: []feed.Item{}}},
		threads:  &fakeThreads{memory: thread.NewDisclosureMemory()},
		notifs:   &fakeNotifications{page: &feed.NotificationsPage{Items: []feed.NotificationItem{}}},
		store:    postmeta.NewStore(),
		mutator:  &fakeMutator{},
		registry: metrics.New(),
	}
	posts := fakePosts{postURI: {
		URI:       postURI,
		CID:       "bafyabc",
		Author:    domain.Actor{DID: "did:plc:alice", Handle: "alice.test"},
		LikeCount: 4,
	}, likedURI: {
		URI:       likedURI,
		CID:       "bafyliked",
		Author:    domain.Actor{DID: "did:plc:alice", Handle: "alice.test"},
		LikeCount: 7,
		Viewer:    domain.PostViewer{Like: "at://did:plc:viewer/app.bsky.feed.like/3kold"},
	}}
	f.server = NewServer(&config.Config{Port: 3000, GroupReposts: true}, Deps{
		Feeds:         f.feeds,
		Threads:       f.threads,
		Notifications: f.notifs,
		Posts:         posts,
		Meta:          f.store,
		Mutations:     postmeta.NewMutations(f.store, f.mutator, nil, f.registry),
		Metrics:       f.registry,
	}, logger)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDPropagates(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestTimeline(t *testing.T) {
	f := newFixture(t)
	f.feeds.page = &feed.Page{Cursor: "next", Filtered: 2, Items: []feed.Item{
		feed.NewItem(domain.FeedEntry{Post: &domain.Post{URI: postURI}}),
	}}

	rec := f.do(http.MethodGet, "/api/timeline?cursor=abc&reset=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, feed.Source{Kind: feed.SourceTimeline}, f.feeds.src)
	assert.Equal(t, feed.LoadOptions{Cursor: "abc", Reset: true, Group: true}, f.feeds.opts)

	body := decode(t, rec)
	assert.Equal(t, "next", body["cursor"])
	assert.Equal(t, float64(2), body["filtered"])
	assert.Len(t, body["items"], 1)

	t.Run("group can be disabled per request", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/timeline?group=false", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, f.feeds.opts.Group)
	})

	t.Run("bad boolean", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/timeline?reset=maybe", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProfileFeed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/profile/alice.test/feed?view=media", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feed.Source{Kind: feed.SourceAuthor, Actor: "alice.test", View: feed.ViewMedia}, f.feeds.src)

	rec = f.do(http.MethodGet, "/api/profile/alice.test/feed?view=likes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOtherFeeds(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		target string
		want   feed.Source
	}{
		{"/api/feed?uri=at://did:plc:gen/app.bsky.feed.generator/cats", feed.Source{Kind: feed.SourceCustom, URI: "at://did:plc:gen/app.bsky.feed.generator/cats"}},
		{"/api/list?uri=at://did:plc:x/app.bsky.graph.list/l1", feed.Source{Kind: feed.SourceList, URI: "at://did:plc:x/app.bsky.graph.list/l1"}},
		{"/api/search?q=%23golang", feed.Source{Kind: feed.SourceSearch, Query: "#golang"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, f.feeds.src)
		})
	}

	rec := f.do(http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRequest", decode(t, rec)["error"])
}

func TestFeedErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		typ    string
	}{
		{feed.ErrStalePage, http.StatusConflict, "StalePage"},
		{feed.ErrUnknownSource, http.StatusBadRequest, "InvalidRequest"},
		{errors.New("connection reset"), http.StatusBadGateway, "UpstreamError"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			f := newFixture(t)
			f.feeds.err = tt.err
			rec := f.do(http.MethodGet, "/api/timeline", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.typ, decode(t, rec)["error"])
		})
	}
}

func TestFeedAbandonedWhenClientLeaves(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/profile/alice.test/feed?view=replies", nil).WithContext(ctx)
	f.server.Handler().ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, f.feeds.abandoned, 1)
	assert.Equal(t, "profile-alice.test-replies", f.feeds.abandoned[0].Context())

	rec := f.do(http.MethodGet, "/api/timeline", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.feeds.abandoned, 1, "completed requests do not abandon the view")
}

func TestThread(t *testing.T) {
	f := newFixture(t)
	f.threads.layout = &thread.Layout{
		Segments: []thread.SegmentLayout{{Post: &domain.Post{URI: postURI}}},
	}

	rec := f.do(http.MethodGet, "/api/thread?uri="+postURI, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["segments"], 1)

	f.threads.err = thread.ErrNotFound
	rec = f.do(http.MethodGet, "/api/thread?uri="+postURI, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.threads.err = thread.ErrBlocked
	rec = f.do(http.MethodGet, "/api/thread?uri="+postURI, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDisclosure(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/thread/disclosure", `{"branch":"at://b","focal":"at://f","open":true}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.threads.memory.IsOpen("at://b", "at://f"))

	rec = f.do(http.MethodPost, "/api/thread/disclosure", `{"branch":"at://b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/notifications?cursor=c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", f.notifs.cursor)
}

func TestPostMeta(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/posts/meta?uri="+postURI, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(4), meta["likeCount"])
	assert.Equal(t, "idle", meta["like"].(map[string]any)["state"])

	rec = f.do(http.MethodGet, "/api/posts/meta?uri=at://did:plc:x/app.bsky.feed.post/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/posts/meta?uri="+postURI+"&wait=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMetaWait(t *testing.T) {
	f := newFixture(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- f.do(http.MethodGet, "/api/posts/meta?uri="+postURI+"&wait=5s", "")
	}()

	require.Eventually(t, func() bool { return f.store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	_, err := f.store.Modify(postURI, func(m postmeta.Meta) (postmeta.Meta, error) {
		m.LikeCount = 9
		return m, nil
	})
	require.NoError(t, err)

	select {
	case rec := <-done:
		require.Equal(t, http.StatusOK, rec.Code)
		meta := decode(t, rec)["meta"].(map[string]any)
		assert.Equal(t, float64(9), meta["likeCount"])
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not return after an update")
	}
	assert.Equal(t, 0, f.store.Len(), "overlay released after the request")
}

func TestMutations(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/posts/like", `{"uri":"`+postURI+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode(t, rec)["meta"].(map[string]any)
	assert.Equal(t, float64(5), meta["likeCount"])
	assert.Equal(t, "committed", meta["like"].(map[string]any)["state"])

	rec = f.do(http.MethodDelete, "/api/posts/like", `{"uri":"`+postURI+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "the fetched view has no like to delete")
	assert.Equal(t, "NotCommitted", decode(t, rec)["error"])

	rec = f.do(http.MethodPost, "/api/posts/repost", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	t.Run("failure rolls back", func(t *testing.T) {
		f.mutator.err = errors.New("upstream down")
		rec := f.do(http.MethodPost, "/api/posts/repost", `{"uri":"`+postURI+`"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, 0, f.store.Len())
	})
}

func TestToggleMutations(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/posts/like/toggle", `{"uri":"`+likedURI+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode(t, rec)["meta"].(map[string]any)
	assert.Equal(t, float64(6), meta["likeCount"])
	assert.Equal(t, "idle", meta["like"].(map[string]any)["state"], "a liked post is unliked")

	rec = f.do(http.MethodPost, "/api/posts/repost/toggle", `{"uri":"`+postURI+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	meta = decode(t, rec)["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["repostCount"])
	assert.Equal(t, "committed", meta["repost"].(map[string]any)["state"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/health", "")
	f.do(http.MethodGet, "/nope", "")

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `skyreader_http_requests_total{method="GET",path="GET /health",status="200"} 1`)
	assert.Contains(t, body, `path="unmatched",status="404"`)
}
