package job

import (
	"context"
	"sync"
	"time"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/config"
	"golang.org/x/sync/errgroup"
)

// DeleteWorkerResult is DeleteWorkerJob's output.
type DeleteWorkerResult struct {
	Worker        string
	OrphanChunks  []int32
	ReplicateOK   bool
}

// DeleteWorkerJob evicts one worker per the six-step
// sequence, driven entirely by jobs this package already implements
// (FindAllJob, ReplicateJob) plus the worker's own service-control
// requests.
type DeleteWorkerJob struct {
	*Base
	deps           Deps
	worker         string
	permanentDelete bool
}

func NewDeleteWorkerJob(deps Deps, worker string, permanentDelete bool) *DeleteWorkerJob {
	return &DeleteWorkerJob{
		Base:            NewBase("DeleteWorkerJob", ""),
		deps:            deps,
		worker:          worker,
		permanentDelete: permanentDelete,
	}
}

func (j *DeleteWorkerJob) Run(ctx context.Context) (*DeleteWorkerResult, error) {
	runCtx := j.Start(ctx)
	result := &DeleteWorkerResult{Worker: j.worker}

	// Step 1: drain if running.
	statusCtx, cancel := context.WithTimeout(runCtx, 60*time.Second)
	conn, err := j.deps.Dialer.Dial(statusCtx, j.worker)
	cancel()
	if err == nil {
		statusCtx, cancel := context.WithTimeout(runCtx, 60*time.Second)
		status, serr := conn.ServiceStatus(statusCtx, &proto.ServiceStatusRequest{})
		cancel()
		if serr == nil && status.State == "RUNNING" {
			drainCtx, dcancel := context.WithTimeout(runCtx, 60*time.Second)
			_, _ = conn.ServiceDrain(drainCtx, &proto.ServiceDrainRequest{})
			dcancel()

			databases := allDatabases(j.deps.Store)
			findCtx, fcancel := context.WithTimeout(runCtx, 60*time.Second)
			_, _ = conn.FindAllReplicas(findCtx, &proto.FindAllReplicasRequest{Databases: databases})
			fcancel()
		}
	}

	// Step 2: disable in configuration.
	if err := j.deps.Store.DisableWorker(runCtx, j.worker); err != nil {
		j.Finish(ExtFailed, err)
		return nil, err
	}

	families := j.deps.Store.Families()

	// Steps 3 & 4: per family, refresh the replica view excluding this
	// worker (now disabled) and restore the replication level.
	var mu sync.Mutex
	allOK := true
	latestFindAll := make(map[string]*FindAllResult)

	g, gctx := errgroup.WithContext(runCtx)
	for _, family := range families {
		family := family
		g.Go(func() error {
			findAll, err := NewFindAllJob(j.deps, family, true, false).Run(gctx)
			if err != nil {
				mu.Lock()
				allOK = false
				mu.Unlock()
				return nil
			}
			mu.Lock()
			latestFindAll[family] = findAll
			mu.Unlock()

			level, err := j.deps.Store.ReplicationLevel(family)
			if err != nil {
				mu.Lock()
				allOK = false
				mu.Unlock()
				return nil
			}
			if _, err := NewReplicateJob(j.deps, family, level, findAll).Run(gctx); err != nil {
				mu.Lock()
				allOK = false
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	result.ReplicateOK = allOK

	// Step 5: orphan-chunk detection, from the database-services cache.
	if allOK {
		replicas := j.deps.ReplicaCache.ReplicasOnWorker(j.worker)
		seen := make(map[int32]bool)
		for _, r := range replicas {
			db, err := j.deps.Store.Database(r.Database)
			if err != nil {
				continue
			}
			findAll := latestFindAll[db.Family]
			if findAll == nil || seen[r.Chunk] {
				continue
			}
			unique := true
			for w, good := range findAll.IsGood[r.Chunk] {
				if w != j.worker && good {
					unique = false
					break
				}
			}
			if unique {
				result.OrphanChunks = append(result.OrphanChunks, r.Chunk)
				seen[r.Chunk] = true
			}
		}
		if j.permanentDelete {
			_ = j.deps.Store.RemoveWorker(runCtx, j.worker)
		}
	}

	if allOK {
		j.Finish(ExtSuccess, nil)
	} else {
		j.Finish(ExtFailed, errPartialEviction)
	}
	return result, nil
}

var errPartialEviction = &partialEvictionErr{}

type partialEvictionErr struct{}

func (*partialEvictionErr) Error() string { return "one or more families failed to restore replication level during worker eviction" }

func allDatabases(store config.Store) []string {
	var out []string
	for _, f := range store.Families() {
		out = append(out, store.Databases(f)...)
	}
	return out
}
