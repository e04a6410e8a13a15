// Package proto defines the wire messages exchanged between the
// controller and the worker's REPLICATION service. These are plain
// JSON-tagged structs rather than protoc-generated protobuf types: the
// transport (pkg/wire) carries them over gRPC using a JSON codec
// instead of the protobuf wire format, so no .proto compilation step
// is required while still running on top of google.golang.org/grpc's
// connection, stream and deadline machinery.
package proto

// ReplicaInfo is a worker's report on one chunk replica.
type ReplicaInfo struct {
	Database   string `json:"database"`
	Chunk      int32  `json:"chunk"`
	Status     string `json:"status"`
	NumRows    int64  `json:"num_rows"`
	SizeBytes  int64  `json:"size_bytes"`
	VerifyTime int64  `json:"verify_time_unix"`
}

// FindAllReplicasRequest asks a worker to report every replica it holds
// for the given databases.
type FindAllReplicasRequest struct {
	Databases []string `json:"databases"`
}

type FindAllReplicasResponse struct {
	Replicas []ReplicaInfo `json:"replicas"`
}

// ReplicateRequest asks a worker to pull chunk/database replica data
// from sourceWorker.
type ReplicateRequest struct {
	Database     string `json:"database"`
	Chunk        int32  `json:"chunk"`
	SourceWorker string `json:"source_worker"`
}

type ReplicateResponse struct {
	Replica ReplicaInfo `json:"replica"`
}

// DeleteReplicaRequest asks a worker to remove its local copy of a
// chunk/database replica.
type DeleteReplicaRequest struct {
	Database string `json:"database"`
	Chunk    int32  `json:"chunk"`
}

type DeleteReplicaResponse struct {
	Removed bool `json:"removed"`
}

// SetChunkListRequest installs the list of chunks a worker should have
// for a database (used to reconcile before a fix-up/replicate pass).
type SetChunkListRequest struct {
	Database string  `json:"database"`
	Chunks   []int32 `json:"chunks"`
}

type SetChunkListResponse struct {
	Chunks []int32 `json:"chunks"`
}

// ServiceStatusRequest asks for a worker's REPLICATION service status.
type ServiceStatusRequest struct{}

type ServiceStatusResponse struct {
	State            string `json:"state"` // RUNNING, DRAINING
	NumProcessingThreads int `json:"num_processing_threads"`
	QueueLength      int    `json:"queue_length"`
}

// ServiceDrainRequest tells a worker to stop accepting new requests and
// finish in-flight ones.
type ServiceDrainRequest struct{}
type ServiceDrainResponse struct {
	State string `json:"state"`
}

// ServiceReconfigRequest tells a worker to reload scalar parameters
// from the Configuration Store.
type ServiceReconfigRequest struct{}
type ServiceReconfigResponse struct {
	State string `json:"state"`
}

// SqlQueryRequest forwards an administrative SQL query to a worker's
// MySQL/MariaDB instance.
type SqlQueryRequest struct {
	Database string `json:"database"`
	Query    string `json:"query"`
	MaxRows  uint64 `json:"max_rows"`
}

type SqlQueryResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}
