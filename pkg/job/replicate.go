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

// ReplicateResult reports one per-chunk replication decision and its
// outcome.
type ReplicateResult struct {
	Chunk        int32
	Database     string
	SourceWorker string
	DestWorker   string
	Err          error
}

// ReplicateJob adds good replicas to the chunks in family that have
// fewer than numReplicas, per chunk-locker-gated per-chunk planning.
// One run adds at most one new replica per chunk, so a chunk that is
// more than one replica short still has fewer than numReplicas good
// replicas when the run finishes.
type ReplicateJob struct {
	*Base
	deps        Deps
	numReplicas uint
	findAll     *FindAllResult
}

// NewReplicateJob requires a FindAllResult computed by a prior
// FindAllJob run against the same family; the replication loop always runs FindAllJob earlier in the same iteration.
func NewReplicateJob(deps Deps, family string, numReplicas uint, findAll *FindAllResult) *ReplicateJob {
	return &ReplicateJob{
		Base:        NewBase("ReplicateJob", family),
		deps:        deps,
		numReplicas: numReplicas,
		findAll:     findAll,
	}
}

// chunkOccupancy returns, for every enabled writable worker, the
// number of chunks it currently holds across the family.
func chunkOccupancy(store interface {
	Workers(bool, bool) []string
}, findAll *FindAllResult) map[string]int {
	occ := make(map[string]int)
	for _, w := range store.Workers(true, false) {
		occ[w] = 0
	}
	// Count distinct chunks per worker (a chunk counts once even if
	// held by several databases of the family).
	perWorkerChunks := make(map[string]map[int32]bool)
	for _, byChunk := range findAll.Replicas {
		for c, byWorker := range byChunk {
			for w := range byWorker {
				if perWorkerChunks[w] == nil {
					perWorkerChunks[w] = make(map[int32]bool)
				}
				perWorkerChunks[w][c] = true
			}
		}
	}
	for w, chunks := range perWorkerChunks {
		occ[w] = len(chunks)
	}
	return occ
}

// Run plans and executes replication for every under-replicated chunk
// in the family, one locked plan per chunk, fanned out concurrently.
func (j *ReplicateJob) Run(ctx context.Context) ([]ReplicateResult, error) {
	runCtx := j.Start(ctx)

	occupancy := chunkOccupancy(j.deps.Store, j.findAll)
	writable := j.deps.Store.Workers(true, false)

	var candidateChunks []int32
	for c := range j.findAll.Databases {
		if chunk.Number(c) == chunk.Dummy {
			continue
		}
		goodCount := 0
		for _, w := range writable {
			if j.findAll.IsGood[c][w] {
				goodCount++
			}
		}
		// also count read-only/good holders toward the replica count
		for w, good := range j.findAll.IsGood[c] {
			if !contains(writable, w) && good {
				goodCount++
			}
		}
		if goodCount < int(j.numReplicas) {
			candidateChunks = append(candidateChunks, c)
		}
	}
	sort.Slice(candidateChunks, func(i, k int) bool { return candidateChunks[i] < candidateChunks[k] })

	j.SetProgress(0, len(candidateChunks))
	var mu sync.Mutex
	var occMu sync.Mutex
	var completed int
	var results []ReplicateResult

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(maxInFlight(len(candidateChunks)))

	for _, c := range candidateChunks {
		c := c
		g.Go(func() error {
			key := locker.Key{Family: j.Family, Chunk: c}
			if !j.deps.Locker.Lock(key, j.ID) {
				return nil
			}
			defer j.deps.Locker.Release(key)

			src, ok := pickSource(j.findAll, c)
			if !ok {
				return nil
			}

			// pickDest reads occupancy and the chosen worker's count is
			// bumped in the same critical section, so two concurrent
			// chunk goroutines never race on the map and never pick the
			// same least-loaded destination for two chunks in a row.
			occMu.Lock()
			dest, ok := pickDest(occupancy, writable, j.findAll, c)
			if ok {
				occupancy[dest]++
			}
			occMu.Unlock()
			if !ok {
				return nil
			}

			for db := range j.findAll.Databases[c] {
				if _, hasIt := j.findAll.Replicas[db][c][dest]; hasIt {
					continue // dest already holds this database's chunk
				}
				conn, err := j.deps.Dialer.Dial(gctx, dest)
				if err != nil {
					mu.Lock()
					results = append(results, ReplicateResult{Chunk: c, Database: db, SourceWorker: src, DestWorker: dest, Err: err})
					mu.Unlock()
					continue
				}
				_, err = conn.Replicate(gctx, &proto.ReplicateRequest{Database: db, Chunk: c, SourceWorker: src})
				mu.Lock()
				results = append(results, ReplicateResult{Chunk: c, Database: db, SourceWorker: src, DestWorker: dest, Err: err})
				mu.Unlock()
			}

			mu.Lock()
			completed++
			j.SetProgress(completed, len(candidateChunks))
			mu.Unlock()
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

func pickSource(findAll *FindAllResult, c int32) (string, bool) {
	for _, byWorker := range findAll.Replicas {
		for worker, good := range findAll.IsGood[c] {
			if !good {
				continue
			}
			if _, ok := byWorker[c][worker]; ok {
				return worker, true
			}
		}
	}
	return "", false
}

// pickDest implements the destination-selection rule: among
// writable workers not already holding this chunk, the one with the
// least total chunk count across the family, ties broken
// lexicographically.
func pickDest(occupancy map[string]int, writable []string, findAll *FindAllResult, c int32) (string, bool) {
	var candidates []string
	for _, w := range writable {
		holds := false
		for db := range findAll.Databases[c] {
			if _, ok := findAll.Replicas[db][c][w]; ok {
				holds = true
				break
			}
		}
		if !holds {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, k int) bool {
		oi, ok := occupancy[candidates[i]], occupancy[candidates[k]]
		if oi != ok {
			return oi < ok
		}
		return candidates[i] < candidates[k]
	})
	return candidates[0], true
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
