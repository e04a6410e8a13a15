package controller

import (
	"sync"

	"github.com/lsst/qserv-replica/api/proto"
)

// replicaCache is the controller's database-services cache (spec
// §4.5): the most recently observed replica set per worker, kept
// in-memory only. It is refreshed wholesale by FindAllJob runs with
// saveReplicaInfo=true and read by DeleteWorkerJob's orphan-chunk
// detection. Unlike the Configuration Store it is never persisted: a
// controller restart simply re-populates it on the next FindAllJob.
type replicaCache struct {
	mu       sync.RWMutex
	byWorker map[string][]proto.ReplicaInfo
}

func newReplicaCache() *replicaCache {
	return &replicaCache{byWorker: make(map[string][]proto.ReplicaInfo)}
}

func (c *replicaCache) PutReplicas(worker string, replicas []proto.ReplicaInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]proto.ReplicaInfo, len(replicas))
	copy(cp, replicas)
	c.byWorker[worker] = cp
}

func (c *replicaCache) ReplicasOnWorker(worker string) []proto.ReplicaInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byWorker[worker]
}
