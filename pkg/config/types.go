package config

import "time"

// Worker describes a cluster worker node.
type Worker struct {
	Name string `toml:"name"`

	IsEnabled  bool `toml:"is_enabled"`
	IsReadOnly bool `toml:"is_read_only"`

	SvcHost string `toml:"svc_host"`
	SvcPort int    `toml:"svc_port"`

	FsHost string `toml:"fs_host"`
	FsPort int    `toml:"fs_port"`

	DbHost string `toml:"db_host"`
	DbPort int    `toml:"db_port"`
	DbUser string `toml:"db_user"`

	LoaderHost string `toml:"loader_host"`
	LoaderPort int    `toml:"loader_port"`

	// QservHost/QservPort address this worker's xrootd data server, the
	// target of ClusterHealthJob's Qserv-side probe.
	QservHost string `toml:"qserv_host"`
	QservPort int    `toml:"qserv_port"`

	// DataDir may contain the literal token "{worker}", expanded at read
	// time to this worker's Name.
	DataDir string `toml:"data_dir"`
}

// DatabaseFamily groups databases that share a partitioning scheme and
// are therefore eligible for chunk collocation.
type DatabaseFamily struct {
	Name string `toml:"name"`

	ReplicationLevel uint `toml:"replication_level"`

	NumStripes    int     `toml:"num_stripes"`
	NumSubStripes int     `toml:"num_sub_stripes"`
	Overlap       float64 `toml:"overlap"`
}

// Database belongs to exactly one family.
type Database struct {
	Name        string `toml:"name"`
	Family      string `toml:"family"`
	IsPublished bool   `toml:"is_published"`
}

// TableKind distinguishes partitioned tables from fully-replicated
// "regular" ones.
type TableKind string

const (
	TableRegular     TableKind = "regular"
	TablePartitioned TableKind = "partitioned"
)

// Column is an ordered (name, type) pair in a table's schema.
type Column struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// ReservedTransColumn is prepended to every table's schema and must
// never be supplied by a user.
const ReservedTransColumn = "qserv_trans_id"

// Table describes a single table within a database.
type Table struct {
	Database string
	Name     string
	Kind     TableKind
	Schema   []Column

	// Partitioned-table-only fields; empty for regular tables.
	DirectorKeyColumn string
	ChunkIDColumn     string
	SubChunkIDColumn  string

	// IsDirector marks the single partitioned table per database that
	// additionally owns the object identifier and lat/lon columns.
	IsDirector     bool
	LatitudeColumn string
	LongitudeColumn string
}

// ReplicaStatus is the worker-reported state of one chunk replica
//.
type ReplicaStatus string

const (
	ReplicaComplete   ReplicaStatus = "COMPLETE"
	ReplicaIncomplete ReplicaStatus = "INCOMPLETE"
	ReplicaCorrupt    ReplicaStatus = "CORRUPT"
)

// Replica is identified by (Database, Chunk, Worker).
type Replica struct {
	Database   string
	Chunk      int32
	Worker     string
	Status     ReplicaStatus
	VerifyTime time.Time
	NumRows    int64
	SizeBytes  int64
}

// TransactionState tracks an ingest transaction's lifecycle.
type TransactionState string

const (
	TransStarted  TransactionState = "STARTED"
	TransFinished TransactionState = "FINISHED"
	TransAborted  TransactionState = "ABORTED"
)

// Transaction is a short-lived ingest identifier tagging rows via
// qserv_trans_id so they can be committed or aborted atomically.
type Transaction struct {
	ID       int32
	Database string
	State    TransactionState
	BeginAt  time.Time
	EndAt    time.Time
}

// AddTableRequest is the validated input to AddTable.
type AddTableRequest struct {
	Database          string
	Name              string
	IsPartitioned     bool
	Schema            []Column
	DirectorKeyColumn string
	ChunkIDColumn     string
	SubChunkIDColumn  string
	IsDirector        bool
	LatitudeColumn    string
	LongitudeColumn   string
}
