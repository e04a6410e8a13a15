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

// RebalanceMove is one planned (or executed) chunk move.
type RebalanceMove struct {
	Chunk      int32
	Database   string
	FromWorker string
	ToWorker   string
	Executed   bool
	Err        error
}

// RebalanceJob moves individual good replicas from the most-loaded
// writable workers to the least-loaded ones, one chunk at a time, to
// flatten the family's per-worker chunk-count distribution. Unlike
// ReplicateJob/PurgeJob it never changes the total replica count for a
// chunk: every move is a Replicate to the new worker immediately
// followed by a DeleteReplica on the old one.
type RebalanceJob struct {
	*Base
	deps         Deps
	estimateOnly bool
	findAll      *FindAllResult
}

func NewRebalanceJob(deps Deps, family string, estimateOnly bool, findAll *FindAllResult) *RebalanceJob {
	return &RebalanceJob{Base: NewBase("RebalanceJob", family), deps: deps, estimateOnly: estimateOnly, findAll: findAll}
}

func (j *RebalanceJob) Run(ctx context.Context) ([]RebalanceMove, error) {
	runCtx := j.Start(ctx)

	occupancy := chunkOccupancy(j.deps.Store, j.findAll)
	writable := j.deps.Store.Workers(true, false)
	if len(writable) < 2 {
		j.Finish(ExtSuccess, nil)
		return nil, nil
	}

	// Plan: while the busiest writable worker holds more than one chunk
	// above the least-loaded one, move one good, non-colocation-breaking
	// chunk from the busiest to the least-loaded worker.
	var moves []RebalanceMove
	perWorkerChunks := make(map[string][]int32)
	for c, good := range j.findAll.IsGood {
		if chunk.Number(c) == chunk.Dummy {
			continue
		}
		for w, ok := range good {
			if ok && contains(writable, w) {
				perWorkerChunks[w] = append(perWorkerChunks[w], c)
			}
		}
	}

	for iterations := 0; iterations < len(writable)*4; iterations++ {
		sorted := append([]string(nil), writable...)
		sort.Slice(sorted, func(i, k int) bool {
			if occupancy[sorted[i]] != occupancy[sorted[k]] {
				return occupancy[sorted[i]] > occupancy[sorted[k]]
			}
			return sorted[i] < sorted[k]
		})
		busiest, idlest := sorted[0], sorted[len(sorted)-1]
		if occupancy[busiest]-occupancy[idlest] <= 1 {
			break
		}
		chunks := perWorkerChunks[busiest]
		if len(chunks) == 0 {
			break
		}
		sort.Slice(chunks, func(i, k int) bool { return chunks[i] < chunks[k] })
		// move the lowest-numbered chunk the idlest worker doesn't hold yet
		moved := false
		for i, c := range chunks {
			if contains(perWorkerChunks[idlest], c) {
				continue
			}
			perWorkerChunks[busiest] = append(chunks[:i:i], chunks[i+1:]...)
			perWorkerChunks[idlest] = append(perWorkerChunks[idlest], c)
			occupancy[busiest]--
			occupancy[idlest]++
			for db := range j.findAll.Databases[c] {
				moves = append(moves, RebalanceMove{Chunk: c, Database: db, FromWorker: busiest, ToWorker: idlest})
			}
			moved = true
			break
		}
		if !moved {
			break
		}
	}

	j.SetProgress(0, len(moves))
	if j.estimateOnly {
		j.Finish(ExtSuccess, nil)
		return moves, nil
	}

	var mu sync.Mutex
	var completed int
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(maxInFlight(len(moves)))
	for i := range moves {
		mv := &moves[i]
		g.Go(func() error {
			key := locker.Key{Family: j.Family, Chunk: mv.Chunk}
			if !j.deps.Locker.Lock(key, j.ID) {
				return nil
			}
			defer j.deps.Locker.Release(key)

			destConn, err := j.deps.Dialer.Dial(gctx, mv.ToWorker)
			if err != nil {
				mv.Err = err
				return nil
			}
			if _, err := destConn.Replicate(gctx, &proto.ReplicateRequest{Database: mv.Database, Chunk: mv.Chunk, SourceWorker: mv.FromWorker}); err != nil {
				mv.Err = err
				return nil
			}
			srcConn, err := j.deps.Dialer.Dial(gctx, mv.FromWorker)
			if err != nil {
				mv.Err = err
				return nil
			}
			_, err = srcConn.DeleteReplica(gctx, &proto.DeleteReplicaRequest{Database: mv.Database, Chunk: mv.Chunk})
			mv.Err = err
			mv.Executed = err == nil

			mu.Lock()
			completed++
			j.SetProgress(completed, len(moves))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.Finish(ExtCancelled, err)
		return moves, err
	}
	j.Finish(ExtSuccess, nil)
	return moves, nil
}
