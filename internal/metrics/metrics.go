// Package metrics exposes the reader's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skyreader"

// Metrics holds all Prometheus metrics for the application. It implements the
// recorder interfaces of the feed, postmeta and firehose packages.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Feed pipeline metrics
	FeedPagesTotal      *prometheus.CounterVec
	FeedEntriesTotal    *prometheus.CounterVec
	FeedEntriesKept     *prometheus.CounterVec
	FeedEntriesDropped  *prometheus.CounterVec
	FeedStalePagesTotal *prometheus.CounterVec

	// Engagement metrics
	MutationsTotal      *prometheus.CounterVec
	FirehoseEngagements *prometheus.CounterVec

	// PostMetaTracked is set by TrackPostMeta.
	PostMetaTracked prometheus.GaugeFunc
}

// New creates all metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		FeedPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_pages_total",
				Help:      "Feed pages loaded, by source kind",
			},
			[]string{"source"},
		),
		FeedEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_entries_total",
				Help:      "Feed entries received from the AppView",
			},
			[]string{"source"},
		),
		FeedEntriesKept: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_entries_kept_total",
				Help:      "Feed entries that survived massaging and moderation",
			},
			[]string{"source"},
		),
		FeedEntriesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_entries_dropped_total",
				Help:      "Feed entries dropped, by reason",
			},
			[]string{"reason"},
		),
		FeedStalePagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_stale_pages_total",
				Help:      "Pages discarded because their context was reset or abandoned mid-fetch",
			},
			[]string{"source"},
		),

		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Like and repost mutations, by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		FirehoseEngagements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "firehose_engagements_total",
				Help:      "Firehose like and repost events applied to tracked posts",
			},
			[]string{"collection"},
		),
	}
}

// TrackPostMeta exports the number of posts with a live overlay, read from
// tracked at scrape time. Call it once.
func (m *Metrics) TrackPostMeta(tracked func() int) {
	m.PostMetaTracked = promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "postmeta_tracked_posts",
			Help:      "Posts with at least one open overlay subscription",
		},
		func() float64 { return float64(tracked()) },
	)
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// PageLoaded implements feed.Recorder.
func (m *Metrics) PageLoaded(source string, entries, kept int) {
	m.FeedPagesTotal.WithLabelValues(source).Inc()
	m.FeedEntriesTotal.WithLabelValues(source).Add(float64(entries))
	m.FeedEntriesKept.WithLabelValues(source).Add(float64(kept))
}

// EntriesDropped implements feed.Recorder.
func (m *Metrics) EntriesDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	m.FeedEntriesDropped.WithLabelValues(reason).Add(float64(n))
}

// StalePage implements feed.Recorder.
func (m *Metrics) StalePage(source string) {
	m.FeedStalePagesTotal.WithLabelValues(source).Inc()
}

// Mutation implements postmeta.Recorder.
func (m *Metrics) Mutation(kind string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.MutationsTotal.WithLabelValues(kind, status).Inc()
}

// EngagementApplied implements firehose.Recorder.
func (m *Metrics) EngagementApplied(collection string) {
	m.FirehoseEngagements.WithLabelValues(collection).Inc()
}
