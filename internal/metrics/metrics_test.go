package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skyreader/internal/feed"
	"github.com/blackmichael/skyreader/internal/firehose"
	"github.com/blackmichael/skyreader/internal/postmeta"
)

var (
	_ feed.Recorder     = (*Metrics)(nil)
	_ postmeta.Recorder = (*Metrics)(nil)
	_ firehose.Recorder = (*Metrics)(nil)
)

func TestFeedRecorder(t *testing.T) {
	m := New()

	m.PageLoaded("timeline", 30, 24)
	m.PageLoaded("timeline", 30, 28)
	m.EntriesDropped("duplicate", 4)
	m.EntriesDropped("blocked", 0)
	m.StalePage("profile")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedPagesTotal.WithLabelValues("timeline")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.FeedEntriesTotal.WithLabelValues("timeline")))
	assert.Equal(t, 52.0, testutil.ToFloat64(m.FeedEntriesKept.WithLabelValues("timeline")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FeedEntriesDropped.WithLabelValues("duplicate")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FeedEntriesDropped), "zero drops create no series")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedStalePagesTotal.WithLabelValues("profile")))
}

func TestMutationAndEngagement(t *testing.T) {
	m := New()

	m.Mutation("like", true)
	m.Mutation("like", false)
	m.Mutation("like", true)
	m.EngagementApplied("app.bsky.feed.repost")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("like", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("like", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FirehoseEngagements.WithLabelValues("app.bsky.feed.repost")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/timeline", http.StatusOK, 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `skyreader_http_requests_total{method="GET",path="/api/timeline",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewIsIndependent(t *testing.T) {
	a, b := New(), New()
	a.StalePage("timeline")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FeedStalePagesTotal.WithLabelValues("timeline")))
}

func TestTrackPostMeta(t *testing.T) {
	m := New()
	store := postmeta.NewStore()
	m.TrackPostMeta(store.Len)

	assert.Zero(t, testutil.ToFloat64(m.PostMetaTracked))

	sub := store.Subscribe("at://a/1", postmeta.Meta{})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostMetaTracked))

	sub.Close()
	assert.Zero(t, testutil.ToFloat64(m.PostMetaTracked))
}
