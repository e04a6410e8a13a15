// Package job implements the Job Layer: short-lived
// tasks that fan out into many worker calls over Dialer connections,
// gated by the chunk locker. Job state is held in memory only; no job
// writes to the Deps.Ledger store. Every job shares one
// lifecycle (State/ExtState below); concrete kinds (FindAllJob,
// ReplicateJob, PurgeJob, ...) embed *Base and add their own planning
// logic on a common task-state-machine core.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/events"
	"github.com/lsst/qserv-replica/pkg/locker"
	"github.com/lsst/qserv-replica/pkg/storage"
	"github.com/rs/zerolog"
)

type State string

const (
	Created    State = "CREATED"
	InProgress State = "IN_PROGRESS"
	Finished   State = "FINISHED"
)

type ExtState string

const (
	ExtNone        ExtState = ""
	ExtSuccess     ExtState = "SUCCESS"
	ExtFailed      ExtState = "FAILED"
	ExtCancelled   ExtState = "CANCELLED"
	ExtTimeout     ExtState = "TIMEOUT"
	ExtConfigError ExtState = "CONFIG_ERROR"
)

// Conn is the subset of pkg/wire.Client a job needs to talk to one
// worker; satisfied directly by *wire.Client.
type Conn interface {
	FindAllReplicas(ctx context.Context, req *proto.FindAllReplicasRequest) (*proto.FindAllReplicasResponse, error)
	Replicate(ctx context.Context, req *proto.ReplicateRequest) (*proto.ReplicateResponse, error)
	DeleteReplica(ctx context.Context, req *proto.DeleteReplicaRequest) (*proto.DeleteReplicaResponse, error)
	SetChunkList(ctx context.Context, req *proto.SetChunkListRequest) (*proto.SetChunkListResponse, error)
	ServiceStatus(ctx context.Context, req *proto.ServiceStatusRequest) (*proto.ServiceStatusResponse, error)
	ServiceDrain(ctx context.Context, req *proto.ServiceDrainRequest) (*proto.ServiceDrainResponse, error)
	ServiceReconfig(ctx context.Context, req *proto.ServiceReconfigRequest) (*proto.ServiceReconfigResponse, error)
	SqlQuery(ctx context.Context, req *proto.SqlQueryRequest) (*proto.SqlQueryResponse, error)
}

// Dialer resolves a worker name to a reusable connection, owned by the
// controller.
type Dialer interface {
	Dial(ctx context.Context, worker string) (Conn, error)
}

// Deps bundles everything a job needs from its controller, avoiding
// direct Base embedding's otherwise-circular dependency on pkg/controller.
type Deps struct {
	Store        config.Store
	Locker       *locker.Locker
	Ledger       storage.Store
	Dialer       Dialer
	ReplicaCache ReplicaCache
	Events       *events.Broker
	Log          zerolog.Logger

	RequestTimeout time.Duration
}

// Base is the common job state machine embedded by every concrete job.
type Base struct {
	ID       string
	Kind     string
	Family   string
	Priority int
	ParentID string
	Callback func(*Base)

	mu       sync.Mutex
	state    State
	ext      ExtState
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
	progDone int
	progTotal int
}

// NewBase creates a job in state CREATED with a fresh id.
func NewBase(kind, family string) *Base {
	return &Base{
		ID:    uuid.NewString(),
		Kind:  kind,
		Family: family,
		state: Created,
		done:  make(chan struct{}),
	}
}

// Start transitions CREATED->IN_PROGRESS and returns a cancellable
// context derived from ctx; the returned cancel is registered so
// Cancel() can trigger it.
func (b *Base) Start(ctx context.Context) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.state = InProgress
	return runCtx
}

// Finish transitions IN_PROGRESS->FINISHED(ext), is idempotent, and
// invokes the completion callback outside the lock.
func (b *Base) Finish(ext ExtState, err error) {
	b.mu.Lock()
	if b.state == Finished {
		b.mu.Unlock()
		return
	}
	b.state = Finished
	b.ext = ext
	b.err = err
	if b.cancel != nil {
		b.cancel()
	}
	close(b.done)
	cb := b.Callback
	b.mu.Unlock()

	if cb != nil {
		cb(b)
	}
}

// Cancel requests cooperative cancellation; a no-op once finished.
func (b *Base) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Finished {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Base) Done() <-chan struct{} { return b.done }

func (b *Base) State() (State, ExtState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.ext, b.err
}

// SetProgress records done/total units of work, returned by Progress.
func (b *Base) SetProgress(done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progDone, b.progTotal = done, total
}

func (b *Base) Progress() (done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progDone, b.progTotal
}
