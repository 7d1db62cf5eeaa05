package metrics

import (
	"TradeReview/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	reviewRequests *prometheus.CounterVec
	reviewOutcomes *prometheus.CounterVec
	credits        *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		reviewRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradereview_review_requests_total",
				Help: "Review request and retry calls by synchronous result",
			},
			[]string{"op", "result"},
		),
		reviewOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradereview_review_outcomes_total",
				Help: "Review attempts settled by final status",
			},
			[]string{"status"},
		),
		credits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradereview_credit_operations_total",
				Help: "Credit ledger operations by bucket",
			},
			[]string{"op", "bucket"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradereview_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradereview_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"operation"},
		),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradereview_dispatch_queue_depth",
			Help: "Review dispatch messages waiting for a worker",
		}),
	}
}

func (r *Recorder) RecordReviewRequest(op, result string) {
	r.reviewRequests.WithLabelValues(op, result).Inc()
}

func (r *Recorder) RecordReviewOutcome(status string) {
	r.reviewOutcomes.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordCredit(op string, bucket models.CreditBucket) {
	r.credits.WithLabelValues(op, string(bucket)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) RecordReviewRequest(string, string)       {}
func (Nop) RecordReviewOutcome(string)               {}
func (Nop) RecordCredit(string, models.CreditBucket) {}
func (Nop) RecordError(string)                       {}
func (Nop) RecordLatency(string, float64)            {}
func (Nop) RecordQueueDepth(int)                     {}
