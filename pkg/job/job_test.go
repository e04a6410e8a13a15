package job

import (
	"context"
	"sync"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/events"
	"github.com/lsst/qserv-replica/pkg/locker"
	"github.com/rs/zerolog"
)

// fakeConn is a per-worker stand-in for *wire.Client; tests configure
// its behavior by populating the function fields they exercise.
type fakeConn struct {
	worker string

	findAllReplicas func(worker string) []proto.ReplicaInfo
	replicateErr    error
	deleteReplicaErr error
	serviceStatus   *proto.ServiceStatusResponse
	serviceStatusErr error
}

func (c *fakeConn) FindAllReplicas(ctx context.Context, req *proto.FindAllReplicasRequest) (*proto.FindAllReplicasResponse, error) {
	var replicas []proto.ReplicaInfo
	if c.findAllReplicas != nil {
		replicas = c.findAllReplicas(c.worker)
	}
	return &proto.FindAllReplicasResponse{Replicas: replicas}, nil
}

func (c *fakeConn) Replicate(ctx context.Context, req *proto.ReplicateRequest) (*proto.ReplicateResponse, error) {
	if c.replicateErr != nil {
		return nil, c.replicateErr
	}
	return &proto.ReplicateResponse{Replica: proto.ReplicaInfo{Database: req.Database, Chunk: req.Chunk, Status: "COMPLETE"}}, nil
}

func (c *fakeConn) DeleteReplica(ctx context.Context, req *proto.DeleteReplicaRequest) (*proto.DeleteReplicaResponse, error) {
	if c.deleteReplicaErr != nil {
		return nil, c.deleteReplicaErr
	}
	return &proto.DeleteReplicaResponse{Removed: true}, nil
}

func (c *fakeConn) SetChunkList(ctx context.Context, req *proto.SetChunkListRequest) (*proto.SetChunkListResponse, error) {
	return &proto.SetChunkListResponse{Chunks: req.Chunks}, nil
}

func (c *fakeConn) ServiceStatus(ctx context.Context, req *proto.ServiceStatusRequest) (*proto.ServiceStatusResponse, error) {
	if c.serviceStatusErr != nil {
		return nil, c.serviceStatusErr
	}
	if c.serviceStatus != nil {
		return c.serviceStatus, nil
	}
	return &proto.ServiceStatusResponse{State: "RUNNING"}, nil
}

func (c *fakeConn) ServiceDrain(ctx context.Context, req *proto.ServiceDrainRequest) (*proto.ServiceDrainResponse, error) {
	return &proto.ServiceDrainResponse{State: "DRAINING"}, nil
}

func (c *fakeConn) ServiceReconfig(ctx context.Context, req *proto.ServiceReconfigRequest) (*proto.ServiceReconfigResponse, error) {
	return &proto.ServiceReconfigResponse{State: "RUNNING"}, nil
}

func (c *fakeConn) SqlQuery(ctx context.Context, req *proto.SqlQueryRequest) (*proto.SqlQueryResponse, error) {
	return &proto.SqlQueryResponse{}, nil
}

// fakeDialer dials any worker successfully unless its name is listed
// in unreachable, and hands out one fakeConn per worker, pre-seeded
// with replicas from the byWorker map.
type fakeDialer struct {
	mu          sync.Mutex
	unreachable map[string]bool
	byWorker    map[string][]proto.ReplicaInfo
	dialed      map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		unreachable: make(map[string]bool),
		byWorker:    make(map[string][]proto.ReplicaInfo),
		dialed:      make(map[string]int),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, worker string) (Conn, error) {
	d.mu.Lock()
	d.dialed[worker]++
	unreachable := d.unreachable[worker]
	replicas := d.byWorker[worker]
	d.mu.Unlock()
	if unreachable {
		return nil, context.DeadlineExceeded
	}
	return &fakeConn{
		worker: worker,
		findAllReplicas: func(string) []proto.ReplicaInfo {
			return replicas
		},
	}, nil
}

// fakeReplicaCache is an in-memory ReplicaCache for tests.
type fakeReplicaCache struct {
	mu       sync.Mutex
	byWorker map[string][]proto.ReplicaInfo
}

func newFakeReplicaCache() *fakeReplicaCache {
	return &fakeReplicaCache{byWorker: make(map[string][]proto.ReplicaInfo)}
}

func (c *fakeReplicaCache) PutReplicas(worker string, replicas []proto.ReplicaInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byWorker[worker] = replicas
}

func (c *fakeReplicaCache) ReplicasOnWorker(worker string) []proto.ReplicaInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byWorker[worker]
}

// newTestDeps builds a Deps wired to an in-memory configuration store
// seeded with the given worker names (all enabled, writable) plus
// family/database registrations sufficient for the job tests.
func newTestDeps(t testingT, workers []string, family, database string) (Deps, *fakeDialer) {
	store := config.NewMapBackend(config.DefaultParams())
	ctx := context.Background()
	mustNoError(t, store.AddDatabaseFamily(ctx, config.DatabaseFamily{
		Name: family, NumStripes: 10, NumSubStripes: 2, Overlap: 0.01, ReplicationLevel: 2,
	}))
	mustNoError(t, store.AddDatabase(ctx, config.Database{Name: database, Family: family}))
	for _, w := range workers {
		mustNoError(t, store.AddWorker(ctx, config.Worker{Name: w, IsEnabled: true, IsReadOnly: false}))
	}
	dialer := newFakeDialer()
	return Deps{
		Store:          store,
		Locker:         locker.New(),
		Dialer:         dialer,
		ReplicaCache:   newFakeReplicaCache(),
		Events:         events.NewBroker(),
		Log:            zerolog.Nop(),
		RequestTimeout: 0,
	}, dialer
}

// testingT is the minimal subset of *testing.T this helper needs,
// avoiding an import cycle concern is moot here but keeps the helper
// signature honest about what it uses.
type testingT interface {
	Fatalf(format string, args ...interface{})
}

func mustNoError(t testingT, err error) {
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
