package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker / configuration metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qserv_replica_workers_total",
			Help: "Total number of registered workers by enabled/read-only status",
		},
		[]string{"enabled", "read_only"},
	)

	DatabasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qserv_replica_databases_total",
			Help: "Total number of registered databases by family and published status",
		},
		[]string{"family", "published"},
	)

	// Chunk lock metrics
	ChunksLockedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserv_replica_chunks_locked_total",
			Help: "Total number of chunks currently locked by in-flight jobs",
		},
	)

	// Request layer metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserv_replica_requests_total",
			Help: "Total number of worker requests by kind and extended status",
		},
		[]string{"kind", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qserv_replica_request_duration_seconds",
			Help:    "Worker request duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	RequestRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserv_replica_request_retries_total",
			Help: "Total number of worker request retries by kind",
		},
		[]string{"kind"},
	)

	// Job layer metrics
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserv_replica_jobs_total",
			Help: "Total number of jobs by kind and extended status",
		},
		[]string{"kind", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qserv_replica_job_duration_seconds",
			Help:    "Job duration in seconds by kind",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind"},
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserv_replica_jobs_in_flight",
			Help: "Number of jobs currently in the IN_PROGRESS state",
		},
	)

	// Replication loop metrics
	ReplicationCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qserv_replica_replication_cycle_duration_seconds",
			Help:    "Time taken for one find-fixup-replicate-rebalance-purge cycle",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	ReplicationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qserv_replica_replication_cycles_total",
			Help: "Total number of completed replication cycles",
		},
	)

	// Health monitor metrics
	WorkerNonResponseStreak = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qserv_replica_worker_non_response_streak",
			Help: "Current consecutive non-response count for a worker service",
		},
		[]string{"worker", "service"},
	)

	WorkersEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qserv_replica_workers_evicted_total",
			Help: "Total number of workers evicted by the health monitor",
		},
	)

	// Ingest metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserv_replica_transactions_total",
			Help: "Total number of ingest transactions by final state",
		},
		[]string{"state"},
	)

	IngestRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserv_replica_ingest_requests_total",
			Help: "Total number of ingest HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// Optional HA configuration-apply (raft) metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserv_replica_raft_is_leader",
			Help: "Whether this controller is the Raft leader for configuration apply (1 = leader, 0 = follower)",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qserv_replica_raft_apply_duration_seconds",
			Help:    "Time taken to apply a configuration change through Raft",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		WorkersTotal,
		DatabasesTotal,
		ChunksLockedTotal,
		RequestsTotal,
		RequestDuration,
		RequestRetriesTotal,
		JobsTotal,
		JobDuration,
		JobsInFlight,
		ReplicationCycleDuration,
		ReplicationCyclesTotal,
		WorkerNonResponseStreak,
		WorkersEvictedTotal,
		TransactionsTotal,
		IngestRequestsTotal,
		RaftLeader,
		RaftApplyDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
