// Package metrics exposes prometheus counters for the sync engines and
// a fasthttp handler serving the standard text exposition format.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	ReconcilePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framesync_reconcile_passes_total",
			Help: "Reconciliation passes by outcome.",
		},
		[]string{"outcome"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framesync_reconcile_duration_seconds",
			Help:    "Wall time of a full reconciliation pass.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	AssetsRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "framesync_assets_removed_total",
			Help: "Local assets deleted because the server no longer lists them.",
		},
	)

	UsersPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "framesync_users_purged_total",
			Help: "Stale users purged from the local cache.",
		},
	)

	QueueItemsRewritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "framesync_queue_items_rewritten_total",
			Help: "Share-history queue items rewritten after recipient removal.",
		},
	)

	MessagesMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framesync_messages_merged_total",
			Help: "Messages added to the local interaction store.",
		},
		[]string{"anchor"},
	)

	ReactionsMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framesync_reactions_merged_total",
			Help: "Reactions added to or removed from the local interaction store.",
		},
		[]string{"anchor", "op"},
	)

	ThreadsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framesync_threads_synced_total",
			Help: "Thread summary operations by kind.",
		},
		[]string{"kind"},
	)

	RemoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framesync_remote_requests_total",
			Help: "Remote store requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	goroutines = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesync_goroutines",
			Help: "Number of active goroutines.",
		},
		func() float64 { return float64(runtime.NumGoroutine()) },
	)
)

func init() {
	prometheus.MustRegister(ReconcilePasses)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(AssetsRemoved)
	prometheus.MustRegister(UsersPurged)
	prometheus.MustRegister(QueueItemsRewritten)
	prometheus.MustRegister(MessagesMerged)
	prometheus.MustRegister(ReactionsMerged)
	prometheus.MustRegister(ThreadsSynced)
	prometheus.MustRegister(RemoteRequests)
	prometheus.MustRegister(goroutines)
}

// Handler serves /metrics under fasthttp.
func Handler() fasthttp.RequestHandler {
	return wrapHTTPHandler(promhttp.Handler())
}

func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}
