package wire

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/lsst/qserv-replica/api/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a connection to one worker's REPLICATION service, used by
// the controller's dialer (pkg/controller) to issue worker requests;
// callers are expected to pool one Client per worker.
type Client struct {
	conn *grpc.ClientConn
}

// DialOptions configures Dial.
type DialOptions struct {
	// TLSConfig enables TLS when non-nil; otherwise the connection is
	// plaintext, appropriate for a trusted cluster network.
	TLSConfig *tls.Config
	Timeout   time.Duration
}

// Dial opens a connection to a worker's REPLICATION service endpoint
// (host:port).
func Dial(ctx context.Context, addr string, opts DialOptions) (*Client, error) {
	creds := insecure.NewCredentials()
	if opts.TLSConfig != nil {
		creds = credentials.NewTLS(opts.TLSConfig)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial worker %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	fullMethod := fmt.Sprintf("/%s/%s", serviceName, method)
	return c.conn.Invoke(ctx, fullMethod, req, resp, grpc.CallContentSubtype(codecName))
}

func (c *Client) FindAllReplicas(ctx context.Context, req *proto.FindAllReplicasRequest) (*proto.FindAllReplicasResponse, error) {
	resp := new(proto.FindAllReplicasResponse)
	return resp, c.invoke(ctx, "FindAllReplicas", req, resp)
}

func (c *Client) Replicate(ctx context.Context, req *proto.ReplicateRequest) (*proto.ReplicateResponse, error) {
	resp := new(proto.ReplicateResponse)
	return resp, c.invoke(ctx, "Replicate", req, resp)
}

func (c *Client) DeleteReplica(ctx context.Context, req *proto.DeleteReplicaRequest) (*proto.DeleteReplicaResponse, error) {
	resp := new(proto.DeleteReplicaResponse)
	return resp, c.invoke(ctx, "DeleteReplica", req, resp)
}

func (c *Client) SetChunkList(ctx context.Context, req *proto.SetChunkListRequest) (*proto.SetChunkListResponse, error) {
	resp := new(proto.SetChunkListResponse)
	return resp, c.invoke(ctx, "SetChunkList", req, resp)
}

func (c *Client) ServiceStatus(ctx context.Context, req *proto.ServiceStatusRequest) (*proto.ServiceStatusResponse, error) {
	resp := new(proto.ServiceStatusResponse)
	return resp, c.invoke(ctx, "ServiceStatus", req, resp)
}

func (c *Client) ServiceDrain(ctx context.Context, req *proto.ServiceDrainRequest) (*proto.ServiceDrainResponse, error) {
	resp := new(proto.ServiceDrainResponse)
	return resp, c.invoke(ctx, "ServiceDrain", req, resp)
}

func (c *Client) ServiceReconfig(ctx context.Context, req *proto.ServiceReconfigRequest) (*proto.ServiceReconfigResponse, error) {
	resp := new(proto.ServiceReconfigResponse)
	return resp, c.invoke(ctx, "ServiceReconfig", req, resp)
}

func (c *Client) SqlQuery(ctx context.Context, req *proto.SqlQueryRequest) (*proto.SqlQueryResponse, error) {
	resp := new(proto.SqlQueryResponse)
	return resp, c.invoke(ctx, "SqlQuery", req, resp)
}
