package wire

import (
	"context"

	"github.com/lsst/qserv-replica/api/proto"
	"google.golang.org/grpc"
)

// serviceName is the fully-qualified gRPC service name workers
// register and the controller dials.
const serviceName = "qservreplica.WorkerControl"

// WorkerControlServer is implemented by a worker's REPLICATION
// service and invoked by the controller's request layer.
type WorkerControlServer interface {
	FindAllReplicas(context.Context, *proto.FindAllReplicasRequest) (*proto.FindAllReplicasResponse, error)
	Replicate(context.Context, *proto.ReplicateRequest) (*proto.ReplicateResponse, error)
	DeleteReplica(context.Context, *proto.DeleteReplicaRequest) (*proto.DeleteReplicaResponse, error)
	SetChunkList(context.Context, *proto.SetChunkListRequest) (*proto.SetChunkListResponse, error)
	ServiceStatus(context.Context, *proto.ServiceStatusRequest) (*proto.ServiceStatusResponse, error)
	ServiceDrain(context.Context, *proto.ServiceDrainRequest) (*proto.ServiceDrainResponse, error)
	ServiceReconfig(context.Context, *proto.ServiceReconfigRequest) (*proto.ServiceReconfigResponse, error)
	SqlQuery(context.Context, *proto.SqlQueryRequest) (*proto.SqlQueryResponse, error)
}

func handler[Req any, Resp any](call func(WorkerControlServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		s := srv.(WorkerControlServer)
		if interceptor == nil {
			return call(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName}
		return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(s, ctx, req.(*Req))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "FindAllReplicas",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.FindAllReplicasRequest) (*proto.FindAllReplicasResponse, error) {
				return s.FindAllReplicas(ctx, r)
			}),
		},
		{
			MethodName: "Replicate",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.ReplicateRequest) (*proto.ReplicateResponse, error) {
				return s.Replicate(ctx, r)
			}),
		},
		{
			MethodName: "DeleteReplica",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.DeleteReplicaRequest) (*proto.DeleteReplicaResponse, error) {
				return s.DeleteReplica(ctx, r)
			}),
		},
		{
			MethodName: "SetChunkList",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.SetChunkListRequest) (*proto.SetChunkListResponse, error) {
				return s.SetChunkList(ctx, r)
			}),
		},
		{
			MethodName: "ServiceStatus",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.ServiceStatusRequest) (*proto.ServiceStatusResponse, error) {
				return s.ServiceStatus(ctx, r)
			}),
		},
		{
			MethodName: "ServiceDrain",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.ServiceDrainRequest) (*proto.ServiceDrainResponse, error) {
				return s.ServiceDrain(ctx, r)
			}),
		},
		{
			MethodName: "ServiceReconfig",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.ServiceReconfigRequest) (*proto.ServiceReconfigResponse, error) {
				return s.ServiceReconfig(ctx, r)
			}),
		},
		{
			MethodName: "SqlQuery",
			Handler: handler(func(s WorkerControlServer, ctx context.Context, r *proto.SqlQueryRequest) (*proto.SqlQueryResponse, error) {
				return s.SqlQuery(ctx, r)
			}),
		},
	},
	Metadata: "worker_control.proto",
}

// RegisterWorkerControlServer registers srv with s under the
// WorkerControl service name.
func RegisterWorkerControlServer(s *grpc.Server, srv WorkerControlServer) {
	s.RegisterService(&serviceDesc, srv)
}
