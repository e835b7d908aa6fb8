package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket definitions.
var (
	operationDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	storeDurationBuckets     = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
	listSizeBuckets          = []float64{0, 1, 5, 10, 25, 50, 100, 250}
)

// Metrics holds all Prometheus metric instruments. Every recording helper
// is safe to call on a nil *Metrics.
type Metrics struct {
	// Workflow
	TransitionsTotal       *prometheus.CounterVec
	TransitionDuration     *prometheus.HistogramVec
	StateEntriesTotal      *prometheus.CounterVec
	CommentWarningsTotal   *prometheus.CounterVec
	SubmissionsCreated     *prometheus.CounterVec
	IdempotentReplaysTotal prometheus.Counter

	// Transform
	TransformsTotal        *prometheus.CounterVec
	TransformDroppedFields prometheus.Counter

	// Storage
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	ListResultSize         prometheus.Histogram

	// Dependencies
	DependencyUp *prometheus.GaugeVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_transitions_total",
			Help: "Total number of requested workflow transitions by outcome.",
		}, []string{"action", "role", "outcome"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readiness_transition_duration_seconds",
			Help:    "Transition handling duration in seconds, including persistence.",
			Buckets: operationDurationBuckets,
		}, []string{"action"}),
		StateEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_state_entries_total",
			Help: "Total number of times a submission entered a workflow state.",
		}, []string{"state"}),
		CommentWarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_comment_warnings_total",
			Help: "Total number of comment validator warnings on accepted comments.",
		}, []string{"action"}),
		SubmissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_submissions_created_total",
			Help: "Total number of submissions created.",
		}, []string{"status"}),
		IdempotentReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readiness_idempotent_replays_total",
			Help: "Total number of transitions answered from the idempotency store.",
		}),

		TransformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_transforms_total",
			Help: "Total number of form-to-submission conversions.",
		}, []string{"status"}),
		TransformDroppedFields: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readiness_transform_dropped_fields_total",
			Help: "Total number of unknown form fields dropped during conversion.",
		}),

		StoreOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_store_operations_total",
			Help: "Total number of submission store operations.",
		}, []string{"operation", "status"}),
		StoreOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readiness_store_operation_duration_seconds",
			Help:    "Submission store operation duration in seconds.",
			Buckets: storeDurationBuckets,
		}, []string{"operation"}),
		ListResultSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readiness_list_result_size",
			Help:    "Number of submissions returned by a role-filtered list.",
			Buckets: listSizeBuckets,
		}),

		DependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "readiness_dependency_up",
			Help: "Whether a dependency passed its last readiness check (1) or not (0).",
		}, []string{"check"}),
	}

	reg.MustRegister(
		// Workflow
		m.TransitionsTotal,
		m.TransitionDuration,
		m.StateEntriesTotal,
		m.CommentWarningsTotal,
		m.SubmissionsCreated,
		m.IdempotentReplaysTotal,
		// Transform
		m.TransformsTotal,
		m.TransformDroppedFields,
		// Storage
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.ListResultSize,
		// Dependencies
		m.DependencyUp,
	)

	return m
}

// --- Recording helpers ---

// RecordTransition records a requested transition. outcome is "applied" or
// the error code that refused it; to is only counted when applied.
func (m *Metrics) RecordTransition(action, role, outcome, to string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, role, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(duration.Seconds())
	if outcome == "applied" && to != "" {
		m.StateEntriesTotal.WithLabelValues(to).Inc()
	}
}

// RecordCommentWarnings records accepted comments that produced warnings.
func (m *Metrics) RecordCommentWarnings(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.CommentWarningsTotal.WithLabelValues(action).Add(float64(count))
}

// RecordSubmissionCreated records a newly persisted submission.
func (m *Metrics) RecordSubmissionCreated(status string) {
	if m == nil {
		return
	}
	m.SubmissionsCreated.WithLabelValues(status).Inc()
	m.StateEntriesTotal.WithLabelValues(status).Inc()
}

// RecordIdempotentReplay records a transition served from the idempotency store.
func (m *Metrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplaysTotal.Inc()
}

// RecordTransform records a form conversion and the fields it dropped.
func (m *Metrics) RecordTransform(status string, dropped int) {
	if m == nil {
		return
	}
	m.TransformsTotal.WithLabelValues(status).Inc()
	if dropped > 0 {
		m.TransformDroppedFields.Add(float64(dropped))
	}
}

// RecordStoreOperation records a submission store call.
func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordListResult records the size of a role-filtered list.
func (m *Metrics) RecordListResult(n int) {
	if m == nil {
		return
	}
	m.ListResultSize.Observe(float64(n))
}

// SetDependencyUp records the result of a readiness check.
func (m *Metrics) SetDependencyUp(check string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.DependencyUp.WithLabelValues(check).Set(v)
}

// WriteTextfile writes the gathered metrics in the Prometheus text format
// for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
