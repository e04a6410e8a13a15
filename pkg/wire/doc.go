/*
Package wire implements the transport between the controller's request
layer and a worker's REPLICATION service: a gRPC connection carrying
the messages defined in api/proto, encoded with a JSON codec
(codec.go) instead of the protobuf wire format, since no protoc step
runs in this build.

Client is a thin wrapper around one grpc.ClientConn exposing one
method per worker request kind (FindAllReplicas, Replicate,
DeleteReplica, SetChunkList, ServiceStatus, ServiceDrain,
ServiceReconfig, SqlQuery). RegisterWorkerControlServer registers a
WorkerControlServer implementation (the worker side, out of scope for
this repository, which implements only the controller) against a
grpc.Server.

# Why gRPC with a JSON codec

gRPC's connection, deadline, retry and interceptor machinery is reused
as-is; only the wire encoding differs from a protoc-generated service.
This keeps the controller's request layer on the same transport
library the rest of the domain stack uses, while remaining compilable
without a protobuf compilation step.
*/
package wire
