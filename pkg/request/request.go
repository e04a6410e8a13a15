// Package request implements the Request Layer: the
// unit of work sent to exactly one worker. A Request moves through
// CREATED -> IN_PROGRESS -> FINISHED(extended state) or CANCELLED,
// cancellation is idempotent, and every request carries the id of the
// enclosing job for observability (a task-handle pattern generalized
// from containers to worker RPCs).
package request

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/rs/zerolog"
)

// State is the request's canonical lifecycle state.
type State string

const (
	Created    State = "CREATED"
	InProgress State = "IN_PROGRESS"
	Finished   State = "FINISHED"
	Cancelled  State = "CANCELLED"
)

// ExtState refines a FINISHED request's outcome.
type ExtState string

const (
	ExtNone        ExtState = ""
	ExtSuccess     ExtState = "SUCCESS"
	ExtServerError ExtState = "SERVER_ERROR"
	ExtClientError ExtState = "CLIENT_ERROR"
	ExtTimeout     ExtState = "TIMEOUT"
	ExtBad         ExtState = "BAD"
	ExtCancelled   ExtState = "CANCELLED"
)

// Kind names one of the six first-class request kinds plus the Sql*
// family, which share this package's envelope but carry a free-form
// payload (see sql.go).
type Kind string

const (
	KindFindAllReplicas Kind = "FindAllReplicas"
	KindDeleteReplica   Kind = "DeleteReplica"
	KindReplicateChunk  Kind = "ReplicateChunk"
	KindSetChunkList    Kind = "SetChunkList"
	KindServiceStatus   Kind = "ServiceStatus"
	KindServiceDrain    Kind = "ServiceDrain"
	KindServiceReconfig Kind = "ServiceReconfig"
	KindSql             Kind = "Sql"
)

// Request is a single worker-directed operation. Execute performs the
// actual RPC and is supplied by the caller, so this
// package stays transport-agnostic beyond the Worker-targeting rules
// common to every kind.
type Request struct {
	ID       string
	JobID    string
	Kind     Kind
	Worker   string

	mu       sync.Mutex
	state    State
	ext      ExtState
	err      error
	cancel   context.CancelFunc
	done     chan struct{}

	result interface{}
}

// Execute is supplied by callers: it performs the worker RPC and
// returns a result value (request-kind specific) or an error.
type Execute func(ctx context.Context) (interface{}, error)

// New validates worker eligibility per the synchronous-failure
// contract, then returns a Request in CREATED state ready for Start.
// allWorkers bypasses the disabled-worker rejection, so a request can
// still target a worker the configuration has disabled.
func New(store config.Store, jobID, kind string, worker string, allWorkers bool) (*Request, error) {
	w, err := store.Worker(worker)
	if err != nil {
		return nil, ctlerror.Wrap(ctlerror.InvalidArgument, err, "request %s targets unknown worker %q", kind, worker)
	}
	if !w.IsEnabled && !allWorkers {
		return nil, ctlerror.New(ctlerror.WorkerDisabled, "worker %q is disabled", worker)
	}
	return &Request{
		ID:     uuid.NewString(),
		JobID:  jobID,
		Kind:   Kind(kind),
		Worker: worker,
		state:  Created,
		done:   make(chan struct{}),
	}, nil
}

// Run transitions CREATED->IN_PROGRESS, invokes exec with a context
// bounded by timeout, and records the outcome. It is idempotent with
// Cancel: whichever reaches the terminal state first wins.
func (r *Request) Run(ctx context.Context, timeout time.Duration, exec Execute, log zerolog.Logger) {
	r.mu.Lock()
	if r.state != Created {
		r.mu.Unlock()
		return
	}
	r.state = InProgress
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	result, err := exec(runCtx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Cancelled {
		close(r.done)
		return
	}
	r.result = result
	r.err = err
	r.state = Finished
	r.ext = classify(err, runCtx)
	if r.ext != ExtSuccess {
		log.Warn().Str("request_id", r.ID).Str("job_id", r.JobID).Str("worker", r.Worker).
			Str("kind", string(r.Kind)).Str("ext_state", string(r.ext)).Err(err).Msg("request failed")
	}
	close(r.done)
}

func classify(err error, ctx context.Context) ExtState {
	if err == nil {
		return ExtSuccess
	}
	if ctx.Err() == context.DeadlineExceeded {
		return ExtTimeout
	}
	switch ctlerror.KindOf(err) {
	case ctlerror.InvalidArgument, ctlerror.WorkerDisabled, ctlerror.UnknownWorker:
		return ExtClientError
	case ctlerror.Internal:
		return ExtServerError
	default:
		return ExtBad
	}
}

// Cancel requests cooperative cancellation. Idempotent: a request that
// already finished or is already cancelled is unaffected.
func (r *Request) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Finished, Cancelled:
		return
	case Created:
		r.state = Cancelled
		r.ext = ExtCancelled
		close(r.done)
	case InProgress:
		r.state = Cancelled
		r.ext = ExtCancelled
		if r.cancel != nil {
			r.cancel()
		}
	}
}

// Done returns a channel closed when the request reaches a terminal
// state (FINISHED or CANCELLED).
func (r *Request) Done() <-chan struct{} { return r.done }

// State returns the request's current lifecycle state.
func (r *Request) State() (State, ExtState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.ext
}

// Result returns the value produced by Execute, valid only once Done
// is closed and ExtState is ExtSuccess.
func (r *Request) Result() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Err returns the recorded failure, if any.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
