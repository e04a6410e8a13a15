package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/chunk"
	"github.com/lsst/qserv-replica/pkg/locker"
	"golang.org/x/sync/errgroup"
)

// PurgeResult reports one replica removal.
type PurgeResult struct {
	Chunk      int32
	Database   string
	FromWorker string
	Err        error
}

// PurgeJob removes excess good replicas from every over-replicated
// chunk in family, restarting in waves until every chunk is processed
// or no further progress is possible.
type PurgeJob struct {
	*Base
	deps        Deps
	numReplicas uint
	findAll     *FindAllResult

	mu             sync.Mutex
	occMu          sync.Mutex
	numFailedLocks int
	Results        []PurgeResult
}

func NewPurgeJob(deps Deps, family string, numReplicas uint, findAll *FindAllResult) *PurgeJob {
	return &PurgeJob{
		Base:        NewBase("PurgeJob", family),
		deps:        deps,
		numReplicas: numReplicas,
		findAll:     findAll,
	}
}

func (j *PurgeJob) overReplicatedChunks() []int32 {
	var out []int32
	for c, good := range j.findAll.IsGood {
		count := 0
		for _, ok := range good {
			if ok {
				count++
			}
		}
		if chunk.Number(c) != chunk.Dummy && count > int(j.numReplicas) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

// Run executes waves of purge planning until every over-replicated
// chunk has been reduced to numReplicas good copies. A chunk whose
// lock is held by another job is counted in numFailedLocks and retried
// in a new wave one second later, until its lock is acquired or ctx is
// cancelled.
func (j *PurgeJob) Run(ctx context.Context) ([]PurgeResult, error) {
	runCtx := j.Start(ctx)

	// A numReplicas of 0 defaults to the family's configured
	// replication level; if that is also 0 the job is misconfigured
	// and must not proceed, since overReplicatedChunks would otherwise
	// treat every chunk with at least one good replica as an excess
	// copy and purge it down to zero.
	if j.numReplicas == 0 {
		if level, err := j.deps.Store.ReplicationLevel(j.Family); err == nil {
			j.numReplicas = level
		}
	}
	if j.numReplicas == 0 {
		err := fmt.Errorf("PurgeJob: 0 is not allowed for the number of replicas (family %q)", j.Family)
		j.Finish(ExtConfigError, err)
		return j.Results, err
	}

	// config.Store satisfies the narrow interface chunkOccupancy wants.
	occupancy := chunkOccupancy(j.deps.Store, j.findAll)

	remaining := j.overReplicatedChunks()
	j.SetProgress(0, len(remaining))
	total := len(remaining)
	done := 0

	for {
		select {
		case <-runCtx.Done():
			j.Finish(ExtCancelled, runCtx.Err())
			return j.Results, runCtx.Err()
		default:
		}

		if len(remaining) == 0 {
			j.Finish(ExtSuccess, nil)
			return j.Results, nil
		}

		launched := 0
		j.mu.Lock()
		j.numFailedLocks = 0
		j.mu.Unlock()

		var next []int32
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(maxInFlight(len(remaining)))

		for _, c := range remaining {
			c := c
			g.Go(func() error {
				key := locker.Key{Family: j.Family, Chunk: c}
				if !j.deps.Locker.Lock(key, j.ID) {
					mu.Lock()
					j.numFailedLocks++
					next = append(next, c)
					mu.Unlock()
					return nil
				}
				defer j.deps.Locker.Release(key)

				mu.Lock()
				launched++
				mu.Unlock()

				j.purgeChunk(gctx, c, occupancy)

				mu.Lock()
				done++
				j.SetProgress(done, total)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			j.Finish(ExtCancelled, err)
			return j.Results, err
		}

		if launched == 0 && j.numFailedLocks == 0 {
			j.Finish(ExtSuccess, nil)
			return j.Results, nil
		}
		remaining = next
		if len(remaining) > 0 {
			select {
			case <-runCtx.Done():
				j.Finish(ExtCancelled, runCtx.Err())
				return j.Results, runCtx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// purgeChunk removes replicas of chunk c down to numReplicas good
// copies, recomputing the victim (the good-replica holder with highest
// family-wide chunk occupancy) after each removal. occupancy is shared
// across every chunk's goroutine in the wave, so every read and write
// of it is serialized through occMu; the dial/delete RPCs run outside
// the lock.
func (j *PurgeJob) purgeChunk(ctx context.Context, c int32, occupancy map[string]int) {
	var holders []string
	for w, good := range j.findAll.IsGood[c] {
		if good {
			holders = append(holders, w)
		}
	}
	databases := j.findAll.Databases[c]

	for len(holders) > int(j.numReplicas) {
		j.occMu.Lock()
		sort.Slice(holders, func(i, k int) bool {
			oi, ok := occupancy[holders[i]], occupancy[holders[k]]
			if oi != ok {
				return oi > ok // highest occupancy first
			}
			return holders[i] < holders[k]
		})
		victim := holders[0]
		j.occMu.Unlock()
		holders = holders[1:]

		for db := range databases {
			if _, has := j.findAll.Replicas[db][c][victim]; !has {
				continue
			}
			conn, err := j.deps.Dialer.Dial(ctx, victim)
			var reqErr error
			if err != nil {
				reqErr = err
			} else {
				_, reqErr = conn.DeleteReplica(ctx, &proto.DeleteReplicaRequest{Database: db, Chunk: c})
			}
			j.mu.Lock()
			j.Results = append(j.Results, PurgeResult{Chunk: c, Database: db, FromWorker: victim, Err: reqErr})
			j.mu.Unlock()
		}
		j.occMu.Lock()
		occupancy[victim] -= len(databases)
		j.occMu.Unlock()
	}
}
