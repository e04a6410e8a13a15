/*
Package metrics provides Prometheus metrics collection and exposition for
the replication controller.

Metrics are registered at package init against the default Prometheus
registry and exposed via an HTTP handler (Handler) for scraping. They
cover the configuration store (workers, databases), the request layer
(per-kind counts, durations, retries), the job layer (per-kind counts,
durations, in-flight gauge), the replication loop (cycle duration and
count), the health monitor (per-worker non-response streaks, eviction
count), ingest (transactions, HTTP request counts) and, when the
optional Raft-backed configuration-apply path is enabled, leader state
and apply latency.

# Categories

	Configuration: WorkersTotal, DatabasesTotal
	Locker:        ChunksLockedTotal
	Requests:      RequestsTotal, RequestDuration, RequestRetriesTotal
	Jobs:          JobsTotal, JobDuration, JobsInFlight
	Replication:   ReplicationCycleDuration, ReplicationCyclesTotal
	Health:        WorkerNonResponseStreak, WorkersEvictedTotal
	Ingest:        TransactionsTotal, IngestRequestsTotal
	Raft (HA):     RaftLeader, RaftApplyDuration

# Collector

Collector periodically samples a config.Store and republishes its
current contents as the Configuration-category gauges; it does not
own any counters incremented inline by request/job code.

# Timer

Timer is a small helper for observing histogram durations:

	t := metrics.NewTimer()
	// ... do work ...
	t.ObserveDurationVec(metrics.JobDuration, string(kind))

# Component health

HealthChecker (health.go) tracks named component liveness independently
of Prometheus, for human-facing /health, /ready and /live HTTP
endpoints; see HealthHandler, ReadyHandler and LivenessHandler.
*/
package metrics
