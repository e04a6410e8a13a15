// Package storage holds the job ledger: a bucket-per-entity BoltDB
// store narrowed to two record kinds, jobs and requests. Records
// survive a reopen of the store; the controller does not write its
// jobs or requests to it, so job history and in-flight state are not
// recovered after a controller restart.
package storage

import "time"

// JobRecord is the durable projection of a job layer job (pkg/job),
// kept deliberately independent of that package's types to avoid an
// import cycle: pkg/job depends on storage, not the reverse.
type JobRecord struct {
	ID         string
	Kind       string
	State      string
	ExtState   string
	Family     string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Progress   float64
	Error      string
}

// RequestRecord is the durable projection of a single worker request,
// kept for audit and post-mortem purposes; the request layer itself
// is in-memory only (spec: requests do not survive a restart, jobs
// that issued them are simply retried).
type RequestRecord struct {
	ID         string
	JobID      string
	Worker     string
	Kind       string
	State      string
	ExtState   string
	CreatedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Store defines the job ledger persistence contract.
type Store interface {
	PutJob(rec JobRecord) error
	GetJob(id string) (JobRecord, error)
	ListJobs() ([]JobRecord, error)
	DeleteJob(id string) error

	PutRequest(rec RequestRecord) error
	ListRequestsByJob(jobID string) ([]RequestRecord, error)

	Close() error
}
