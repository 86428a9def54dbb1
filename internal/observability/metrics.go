package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records repository query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tribune_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PostViewsRecorded counts view triggers by outcome (counted, duplicate, failed).
	PostViewsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribune_post_views_total",
		Help: "Post view triggers by outcome",
	}, []string{"outcome"})

	// LikeToggles counts like toggles by outcome (liked, unliked, failed).
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribune_like_toggles_total",
		Help: "Like toggles by outcome",
	}, []string{"outcome"})

	// FeedCacheLookups counts derived-feed cache lookups by result (hit, miss).
	FeedCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribune_feed_cache_lookups_total",
		Help: "Derived feed cache lookups by result",
	}, []string{"result"})

	// StoreRefreshes counts post store re-synchronisations by result.
	StoreRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribune_store_refreshes_total",
		Help: "Post store refreshes by result",
	}, []string{"result"})

	// StorePosts is the number of posts currently mirrored in memory.
	StorePosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tribune_store_posts",
		Help: "Number of posts held by the in-memory post store",
	})

	// NewsletterDispatches counts new-post newsletter hand-offs by result.
	NewsletterDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribune_newsletter_dispatches_total",
		Help: "Newsletter dispatches by result",
	}, []string{"result"})

	// WebSocketBackpressureDrops counts live-feed messages dropped by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribune_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
