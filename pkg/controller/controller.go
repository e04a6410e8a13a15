// Package controller implements the Controller: it
// owns the Configuration Store, the request-sending facility (a pooled
// gRPC/JSON connection per worker, dialer.go), the database-services
// cache of observed replica state (replicacache.go), and typed factory
// methods per job kind. It intentionally does not decide *when* to run
// a job — that scheduling policy belongs to pkg/replicationloop and
// pkg/healthmonitor, which call these factories and wait on the
// returned job's Run.
package controller

import (
	"context"
	"time"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/events"
	"github.com/lsst/qserv-replica/pkg/job"
	"github.com/lsst/qserv-replica/pkg/locker"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/lsst/qserv-replica/pkg/storage"
	"github.com/rs/zerolog"
)

// Controller is safe for concurrent use; its sub-resources (locker,
// dialer, replica cache) each hold their own lock per the
// "shared-resource policy".
type Controller struct {
	Store  config.Store
	Locker *locker.Locker
	Ledger storage.Store
	Events *events.Broker

	dialer   *connDialer
	replicas *replicaCache
	log      zerolog.Logger
}

// New wires a Controller over an already-open Configuration Store and
// job ledger. The caller owns both lifetimes and must Close them after
// Shutdown.
func New(store config.Store, ledger storage.Store) *Controller {
	return &Controller{
		Store:    store,
		Locker:   locker.New(),
		Ledger:   ledger,
		Events:   events.NewBroker(),
		dialer:   newConnDialer(store),
		replicas: newReplicaCache(),
		log:      log.Component("controller"),
	}
}

// Shutdown closes pooled worker connections. The Configuration Store
// and job ledger are closed by the caller, not here, matching how they
// were opened.
func (c *Controller) Shutdown() {
	c.dialer.Close()
}

// deps builds the job.Deps bundle every factory method below threads
// through to its job. requestTimeout defaults to
// controllerRequestTimeoutSec when zero.
func (c *Controller) deps(requestTimeout time.Duration) job.Deps {
	if requestTimeout == 0 {
		requestTimeout = time.Duration(c.Store.ControllerRequestTimeoutSec()) * time.Second
	}
	return job.Deps{
		Store:          c.Store,
		Locker:         c.Locker,
		Ledger:         c.Ledger,
		Dialer:         c.dialer,
		ReplicaCache:   c.replicas,
		Events:         c.Events,
		Log:            c.log,
		RequestTimeout: requestTimeout,
	}
}

// ReplicasOnWorker exposes the database-services cache to callers
// (e.g. pkg/ingest's add-chunk endpoint, which needs the current
// placement to pick a least-loaded worker).
func (c *Controller) ReplicasOnWorker(worker string) []proto.ReplicaInfo {
	return c.replicas.ReplicasOnWorker(worker)
}

// FindAll launches a FindAllJob and waits for it.
func (c *Controller) FindAll(ctx context.Context, family string, saveReplicaInfo, allWorkers bool) (*job.FindAllResult, error) {
	return job.NewFindAllJob(c.deps(0), family, saveReplicaInfo, allWorkers).Run(ctx)
}

// Replicate launches a ReplicateJob.
func (c *Controller) Replicate(ctx context.Context, family string, numReplicas uint, findAll *job.FindAllResult) ([]job.ReplicateResult, error) {
	return job.NewReplicateJob(c.deps(0), family, numReplicas, findAll).Run(ctx)
}

// Purge launches a PurgeJob.
func (c *Controller) Purge(ctx context.Context, family string, numReplicas uint, findAll *job.FindAllResult) ([]job.PurgeResult, error) {
	return job.NewPurgeJob(c.deps(0), family, numReplicas, findAll).Run(ctx)
}

// FixUp launches a FixUpJob.
func (c *Controller) FixUp(ctx context.Context, family string, findAll *job.FindAllResult) ([]job.FixUpResult, error) {
	return job.NewFixUpJob(c.deps(0), family, findAll).Run(ctx)
}

// Rebalance launches a RebalanceJob.
func (c *Controller) Rebalance(ctx context.Context, family string, estimateOnly bool, findAll *job.FindAllResult) ([]job.RebalanceMove, error) {
	return job.NewRebalanceJob(c.deps(0), family, estimateOnly, findAll).Run(ctx)
}

// DeleteWorker launches a DeleteWorkerJob.
func (c *Controller) DeleteWorker(ctx context.Context, worker string, permanentDelete bool) (*job.DeleteWorkerResult, error) {
	return job.NewDeleteWorkerJob(c.deps(0), worker, permanentDelete).Run(ctx)
}

// ClusterHealth launches a ClusterHealthJob.
func (c *Controller) ClusterHealth(ctx context.Context, probeTimeoutSec int, qservProbe func(context.Context, string) bool) (*job.ClusterHealthResult, error) {
	return job.NewClusterHealthJob(c.deps(0), probeTimeoutSec, qservProbe).Run(ctx)
}

// Sql launches an Sql* job.
func (c *Controller) Sql(ctx context.Context, family, database string, op job.SqlOp, tables []string, ignoreNonPartitioned bool) ([]job.SqlResult, error) {
	return job.NewSqlJob(c.deps(0), family, database, op, tables, ignoreNonPartitioned).Run(ctx)
}
