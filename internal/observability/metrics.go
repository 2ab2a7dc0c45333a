package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper timeline service.
// Metrics are organized by subsystem: corpus loads, like reconciliation,
// view projections and the HTTP API. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// CorpusLoads counts corpus load attempts, labeled by source and status.
	CorpusLoads *prometheus.CounterVec

	// CorpusLoadDuration observes corpus load duration in seconds, labeled by source.
	CorpusLoadDuration *prometheus.HistogramVec

	// DocumentsLoaded observes the number of documents per successful load.
	DocumentsLoaded prometheus.Histogram

	// CorpusSize reports the number of papers in the current corpus.
	CorpusSize prometheus.Gauge

	// LikeFetches counts bulk reads of the remote counter store, labeled by status.
	LikeFetches *prometheus.CounterVec

	// RemoteRecords reports how many keys the last bulk read returned.
	RemoteRecords prometheus.Gauge

	// OptimisticLikes counts like clicks applied locally.
	OptimisticLikes prometheus.Counter

	// LikeWrites counts persisted likes, labeled by operation (insert, update, increment) and status.
	LikeWrites *prometheus.CounterVec

	// LikeWriteDuration observes like write duration in seconds, labeled by operation.
	LikeWriteDuration *prometheus.HistogramVec

	// LikeRollbacks counts optimistic increments undone after a failed write.
	LikeRollbacks prometheus.Counter

	// PendingWrites reports in-flight like writes.
	PendingWrites prometheus.Gauge

	// Projections counts view projections, labeled by sort mode and whether the result was empty.
	Projections *prometheus.CounterVec

	// EventsPublished counts like events sent to the broker, labeled by status.
	EventsPublished *prometheus.CounterVec

	// HTTPRequests counts API requests, labeled by route and status code.
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration observes API request duration in seconds, labeled by route.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered with the default registry.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Corpus
		CorpusLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_loads_total",
			Help:      "Total number of corpus loads",
		}, []string{"source", "status"}),
		CorpusLoadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "corpus_load_duration_seconds",
			Help:      "Duration of corpus loads in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		DocumentsLoaded: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "documents_per_load",
			Help:      "Number of documents per successful corpus load",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		}),
		CorpusSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_papers",
			Help:      "Number of papers in the current corpus",
		}),

		// Likes
		LikeFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_fetches_total",
			Help:      "Total number of bulk like count reads",
		}, []string{"status"}),
		RemoteRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "like_remote_records",
			Help:      "Number of keys returned by the last bulk like read",
		}),
		OptimisticLikes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "likes_optimistic_total",
			Help:      "Total number of likes applied locally",
		}),
		LikeWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_writes_total",
			Help:      "Total number of like writes to the remote store",
		}, []string{"operation", "status"}),
		LikeWriteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "like_write_duration_seconds",
			Help:      "Duration of like writes in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		LikeRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_rollbacks_total",
			Help:      "Total number of optimistic likes rolled back",
		}),
		PendingWrites: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "like_pending_writes",
			Help:      "Number of like writes in flight",
		}),

		// View
		Projections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projections_total",
			Help:      "Total number of view projections",
		}, []string{"sort", "empty"}),

		// Events
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of like events published",
		}, []string{"status"}),

		// HTTP
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"route", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCorpusLoad records the outcome of a corpus load.
func (m *Metrics) RecordCorpusLoad(source string, documents int, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.CorpusLoads.WithLabelValues(source, statusLabel(err)).Inc()
	m.CorpusLoadDuration.WithLabelValues(source).Observe(durationSeconds)
	if err == nil {
		m.DocumentsLoaded.Observe(float64(documents))
		m.CorpusSize.Set(float64(documents))
	}
}

// RecordLikeFetch records a bulk read of the remote counter store.
func (m *Metrics) RecordLikeFetch(records int, err error) {
	if m == nil {
		return
	}
	m.LikeFetches.WithLabelValues(statusLabel(err)).Inc()
	if err == nil {
		m.RemoteRecords.Set(float64(records))
	}
}

// RecordOptimisticLike records a locally applied like and its pending write.
func (m *Metrics) RecordOptimisticLike() {
	if m == nil {
		return
	}
	m.OptimisticLikes.Inc()
	m.PendingWrites.Inc()
}

// RecordLikeWrite records the outcome of a like write and releases its pending slot.
func (m *Metrics) RecordLikeWrite(operation string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.LikeWrites.WithLabelValues(operation, statusLabel(err)).Inc()
	m.LikeWriteDuration.WithLabelValues(operation).Observe(durationSeconds)
	m.PendingWrites.Dec()
}

// RecordLikeRollback records an optimistic like undone after a failed write.
func (m *Metrics) RecordLikeRollback() {
	if m == nil {
		return
	}
	m.LikeRollbacks.Inc()
}

// RecordProjection records a view projection.
func (m *Metrics) RecordProjection(sort string, empty bool) {
	if m == nil {
		return
	}
	label := "false"
	if empty {
		label = "true"
	}
	m.Projections.WithLabelValues(sort, label).Inc()
}

// RecordEventPublished records a like event publish attempt.
func (m *Metrics) RecordEventPublished(err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(statusLabel(err)).Inc()
}

// RecordHTTPRequest records an API request.
func (m *Metrics) RecordHTTPRequest(route, code string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}
