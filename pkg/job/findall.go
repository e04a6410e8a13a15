package job

import (
	"context"
	"sync"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/chunk"
	"golang.org/x/sync/errgroup"
)

// ReplicaCache is the controller's database-services cache: persisted replica/transaction state, kept separate from the
// job ledger (pkg/storage) because it is queried by read-mostly
// planning code on every job, not just for job bookkeeping.
type ReplicaCache interface {
	// PutReplicas records worker's full reported replica set,
	// replacing whatever this cache previously held for it.
	PutReplicas(worker string, replicas []proto.ReplicaInfo)
	// ReplicasOnWorker returns every replica this cache holds for
	// worker, across all databases, used by DeleteWorkerJob's
	// orphan-chunk detection.
	ReplicasOnWorker(worker string) []proto.ReplicaInfo
}

// FindAllResult is FindAllJob's output.
type FindAllResult struct {
	// Replicas[database][chunk][worker]
	Replicas map[string]map[int32]map[string]proto.ReplicaInfo
	// IsComplete/IsColocated/IsGood[chunk][worker]
	IsComplete  map[int32]map[string]bool
	IsColocated map[int32]map[string]bool
	IsGood      map[int32]map[string]bool
	// Databases[chunk] is the set of databases that have this chunk.
	Databases map[int32]map[string]bool
}

// FindAllJob broadcasts FindAllReplicas to every selected worker for
// every database in family and assembles the collocation view used by
// every downstream planning job.
type FindAllJob struct {
	*Base
	deps            Deps
	saveReplicaInfo bool
	allWorkers      bool
}

func NewFindAllJob(deps Deps, family string, saveReplicaInfo, allWorkers bool) *FindAllJob {
	return &FindAllJob{
		Base:            NewBase("FindAllJob", family),
		deps:            deps,
		saveReplicaInfo: saveReplicaInfo,
		allWorkers:      allWorkers,
	}
}

func (j *FindAllJob) selectedWorkers() []string {
	if j.allWorkers {
		all := j.deps.Store.AllWorkers()
		names := make([]string, 0, len(all))
		for _, w := range all {
			names = append(names, w.Name)
		}
		return names
	}
	return append(j.deps.Store.Workers(true, false), j.deps.Store.Workers(true, true)...)
}

// Run executes the job synchronously and returns the assembled result.
// Jobs in this package expose Run rather than a fire-and-forget Execute
// because the replication loop (pkg/replicationloop) always waits for
// the job it launches before proceeding to the next step.
func (j *FindAllJob) Run(ctx context.Context) (*FindAllResult, error) {
	runCtx := j.Start(ctx)
	databases := j.deps.Store.Databases(j.Family)
	workers := j.selectedWorkers()

	res := &FindAllResult{
		Replicas:    make(map[string]map[int32]map[string]proto.ReplicaInfo),
		IsComplete:  make(map[int32]map[string]bool),
		IsColocated: make(map[int32]map[string]bool),
		IsGood:      make(map[int32]map[string]bool),
		Databases:   make(map[int32]map[string]bool),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(maxInFlight(len(workers)))
	j.SetProgress(0, len(workers))
	var completed int

	for _, worker := range workers {
		worker := worker
		g.Go(func() error {
			conn, err := j.deps.Dialer.Dial(gctx, worker)
			if err != nil {
				j.deps.Log.Warn().Str("worker", worker).Err(err).Msg("find-all: dial failed")
				return nil // a single unreachable worker does not fail the job
			}
			resp, err := conn.FindAllReplicas(gctx, &proto.FindAllReplicasRequest{Databases: databases})
			mu.Lock()
			defer mu.Unlock()
			completed++
			j.SetProgress(completed, len(workers))
			if err != nil {
				j.deps.Log.Warn().Str("worker", worker).Err(err).Msg("find-all: request failed")
				return nil
			}
			for _, r := range resp.Replicas {
				if res.Replicas[r.Database] == nil {
					res.Replicas[r.Database] = make(map[int32]map[string]proto.ReplicaInfo)
				}
				if res.Replicas[r.Database][r.Chunk] == nil {
					res.Replicas[r.Database][r.Chunk] = make(map[string]proto.ReplicaInfo)
				}
				res.Replicas[r.Database][r.Chunk][worker] = r
				if res.Databases[r.Chunk] == nil {
					res.Databases[r.Chunk] = make(map[string]bool)
				}
				res.Databases[r.Chunk][r.Database] = true
			}
			if j.saveReplicaInfo {
				j.deps.ReplicaCache.PutReplicas(worker, resp.Replicas)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.Finish(ExtCancelled, err)
		return nil, err
	}

	j.computeDerived(res, workers)
	j.Finish(ExtSuccess, nil)
	return res, nil
}

func (j *FindAllJob) computeDerived(res *FindAllResult, workers []string) {
	for chunkNum, dbSet := range res.Databases {
		if chunk.Number(chunkNum) == chunk.Dummy {
			continue
		}
		for _, worker := range workers {
			complete := true
			colocated := true
			for db := range dbSet {
				info, ok := res.Replicas[db][chunkNum][worker]
				if !ok {
					colocated = false
					complete = false
					continue
				}
				if info.Status != "COMPLETE" {
					complete = false
				}
			}
			if res.IsComplete[chunkNum] == nil {
				res.IsComplete[chunkNum] = make(map[string]bool)
				res.IsColocated[chunkNum] = make(map[string]bool)
				res.IsGood[chunkNum] = make(map[string]bool)
			}
			res.IsComplete[chunkNum][worker] = complete
			res.IsColocated[chunkNum][worker] = colocated
			res.IsGood[chunkNum][worker] = complete && colocated
		}
	}
	delete(res.Databases, int32(chunk.Dummy))
}

// maxInFlight bounds concurrent worker probes; mirrors
// workerNumProcessingThreads' intent at the job-fan-out level without
// needing the configuration store on this purely-defensive path.
func maxInFlight(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 32 {
		return 32
	}
	return n
}
