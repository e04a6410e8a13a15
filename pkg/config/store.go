// Package config implements the Configuration Store:
// the in-memory authoritative view of workers, database families,
// databases and tables, exposed through a uniform Store interface over
// two durable backends (a parsed TOML key-value file and a relational
// MySQL schema) plus an in-memory "map:" backend for tests. This
// mirrors a Store interface satisfied by more than one concrete backend
// (BoltDB here,
// file/SQL there).
package config

import "context"

// Store is the uniform configuration contract. Read accessors are safe
// for concurrent use without external locking; mutators serialize internally.
type Store interface {
	// Scalar parameters
	RequestBufSizeBytes() int
	RequestRetryIntervalSec() int
	ControllerNumThreads() int
	ControllerRequestTimeoutSec() int
	ControllerJobTimeoutSec() int
	ControllerJobHeartbeatSec() int
	WorkerNumProcessingThreads() int
	FsNumProcessingThreads() int
	FsBufSizeBytes() int
	ReplicationIntervalSec() int
	WorkerResponseTimeoutSec() int
	WorkerEvictTimeoutSec() int
	HealthProbeIntervalSec() int

	// Indexed collections
	Workers(isEnabled bool, isReadOnly bool) []string
	Worker(name string) (Worker, error)
	AllWorkers() []Worker

	Families() []string
	Family(name string) (DatabaseFamily, error)
	ReplicationLevel(family string) (uint, error)

	Databases(family string) []string
	Database(name string) (Database, error)
	DatabasesInFamily(family string) []Database

	Tables(database string) []Table
	Table(database, name string) (Table, error)
	DirectorTable(database string) (Table, error)

	// DataDir with {worker} expansion applied for the named worker.
	WorkerDataDir(workerName string) (string, error)

	// Mutators
	AddDatabaseFamily(ctx context.Context, f DatabaseFamily) error
	DeleteDatabaseFamily(ctx context.Context, name string) error

	AddDatabase(ctx context.Context, db Database) error
	DeleteDatabase(ctx context.Context, name string) error
	PublishDatabase(ctx context.Context, name string) error

	AddTable(ctx context.Context, req AddTableRequest) error
	DeleteTable(ctx context.Context, database, name string) error

	AddWorker(ctx context.Context, w Worker) error
	RemoveWorker(ctx context.Context, name string) error
	DisableWorker(ctx context.Context, name string) error
	SetWorkerEndpoint(ctx context.Context, name string, mutate func(*Worker)) error

	Close() error
}
