package job

import (
	"context"
	"sort"
	"sync"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/chunk"
	"github.com/lsst/qserv-replica/pkg/locker"
	"golang.org/x/sync/errgroup"
)

// FixUpResult reports one collocation repair.
type FixUpResult struct {
	Chunk        int32
	Database     string
	SourceWorker string
	DestWorker   string
	Err          error
}

// FixUpJob repairs collocation: a worker holding some but not all of a
// chunk's family databases is replicated the missing ones, so a later
// ReplicateJob/PurgeJob pass sees a consistent isGood view.
type FixUpJob struct {
	*Base
	deps    Deps
	findAll *FindAllResult
}

func NewFixUpJob(deps Deps, family string, findAll *FindAllResult) *FixUpJob {
	return &FixUpJob{Base: NewBase("FixUpJob", family), deps: deps, findAll: findAll}
}

func (j *FixUpJob) Run(ctx context.Context) ([]FixUpResult, error) {
	runCtx := j.Start(ctx)

	type gap struct {
		chunk   int32
		worker  string
		missing []string
	}
	var gaps []gap
	for c, databases := range j.findAll.Databases {
		if chunk.Number(c) == chunk.Dummy {
			continue
		}
		holders := make(map[string]bool)
		for db := range databases {
			for w := range j.findAll.Replicas[db][c] {
				holders[w] = true
			}
		}
		for w := range holders {
			if j.findAll.IsColocated[c][w] {
				continue
			}
			var missing []string
			for db := range databases {
				if _, has := j.findAll.Replicas[db][c][w]; !has {
					missing = append(missing, db)
				}
			}
			if len(missing) > 0 {
				sort.Strings(missing)
				gaps = append(gaps, gap{chunk: c, worker: w, missing: missing})
			}
		}
	}
	sort.Slice(gaps, func(i, k int) bool {
		if gaps[i].chunk != gaps[k].chunk {
			return gaps[i].chunk < gaps[k].chunk
		}
		return gaps[i].worker < gaps[k].worker
	})

	j.SetProgress(0, len(gaps))
	var mu sync.Mutex
	var results []FixUpResult
	var completed int

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(maxInFlight(len(gaps)))
	for _, gp := range gaps {
		gp := gp
		g.Go(func() error {
			key := locker.Key{Family: j.Family, Chunk: gp.chunk}
			if !j.deps.Locker.Lock(key, j.ID) {
				return nil
			}
			defer j.deps.Locker.Release(key)

			for _, db := range gp.missing {
				src, ok := pickSource(j.findAll, gp.chunk)
				var err error
				if !ok {
					err = errNoSource
				} else {
					conn, derr := j.deps.Dialer.Dial(gctx, gp.worker)
					if derr != nil {
						err = derr
					} else {
						_, err = conn.Replicate(gctx, &proto.ReplicateRequest{Database: db, Chunk: gp.chunk, SourceWorker: src})
					}
				}
				mu.Lock()
				results = append(results, FixUpResult{Chunk: gp.chunk, Database: db, SourceWorker: src, DestWorker: gp.worker, Err: err})
				completed++
				j.SetProgress(completed, len(gaps))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.Finish(ExtCancelled, err)
		return nil, err
	}
	j.Finish(ExtSuccess, nil)
	return results, nil
}

var errNoSource = &noSourceErr{}

type noSourceErr struct{}

func (*noSourceErr) Error() string { return "no good replica source found for chunk" }
