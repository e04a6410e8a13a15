package job

import (
	"context"
	"testing"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/events"
	"github.com/lsst/qserv-replica/pkg/locker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverReplicatedChunksFiltersDummyAndUnderReplicated(t *testing.T) {
	j := &PurgeJob{
		Base:        NewBase("PurgeJob", "dx"),
		numReplicas: 2,
		findAll: &FindAllResult{
			IsGood: map[int32]map[string]bool{
				5:    {"worker-a": true, "worker-b": true, "worker-c": true}, // 3 good, over-replicated
				6:    {"worker-a": true},                                    // under-replicated, skip
				1234567890: {"worker-a": true, "worker-b": true, "worker-c": true},
			},
		},
	}
	out := j.overReplicatedChunks()
	assert.Equal(t, []int32{5}, out)
}

func TestPurgeJobRemovesExcessGoodReplicas(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-a", "worker-b", "worker-c"}, "dx", "db1")
	dialer.byWorker["worker-a"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}
	dialer.byWorker["worker-b"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}
	dialer.byWorker["worker-c"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}

	findAll, err := NewFindAllJob(deps, "dx", false, false).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, findAll.IsGood[5], 3)

	j := NewPurgeJob(deps, "dx", 2, findAll)
	results, err := j.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1, "exactly one replica removed to go from 3 down to 2")
	assert.NoError(t, results[0].Err)

	state, ext, _ := j.State()
	assert.Equal(t, Finished, state)
	assert.Equal(t, ExtSuccess, ext)
}

func TestPurgeJobDefaultsZeroToFamilyReplicationLevel(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-a", "worker-b", "worker-c"}, "dx", "db1")
	dialer.byWorker["worker-a"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}
	dialer.byWorker["worker-b"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}
	dialer.byWorker["worker-c"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}

	findAll, err := NewFindAllJob(deps, "dx", false, false).Run(context.Background())
	require.NoError(t, err)

	// "dx" is seeded with ReplicationLevel: 2, so passing 0 must behave
	// exactly like passing 2 explicitly rather than purging every good
	// replica down to zero.
	j := NewPurgeJob(deps, "dx", 0, findAll)
	results, err := j.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1, "exactly one replica removed to go from 3 down to the family's configured level of 2")

	state, ext, _ := j.State()
	assert.Equal(t, Finished, state)
	assert.Equal(t, ExtSuccess, ext)
}

func TestPurgeJobRejectsZeroReplicationLevel(t *testing.T) {
	store := config.NewMapBackend(config.DefaultParams())
	ctx := context.Background()
	require.NoError(t, store.AddDatabaseFamily(ctx, config.DatabaseFamily{
		Name: "zero-family", NumStripes: 10, NumSubStripes: 2, Overlap: 0.01, ReplicationLevel: 0,
	}))
	require.NoError(t, store.AddDatabase(ctx, config.Database{Name: "db1", Family: "zero-family"}))
	require.NoError(t, store.AddWorker(ctx, config.Worker{Name: "worker-a", IsEnabled: true}))

	dialer := newFakeDialer()
	dialer.byWorker["worker-a"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}
	deps := Deps{
		Store:        store,
		Locker:       locker.New(),
		Dialer:       dialer,
		ReplicaCache: newFakeReplicaCache(),
		Events:       events.NewBroker(),
		Log:          zerolog.Nop(),
	}

	findAll, err := NewFindAllJob(deps, "zero-family", false, false).Run(ctx)
	require.NoError(t, err)

	j := NewPurgeJob(deps, "zero-family", 0, findAll)
	results, err := j.Run(ctx)
	require.Error(t, err)
	assert.Empty(t, results)

	state, ext, _ := j.State()
	assert.Equal(t, Finished, state)
	assert.Equal(t, ExtConfigError, ext)
}

func TestPurgeJobManyChunksShareOccupancyWithoutRacing(t *testing.T) {
	workers := []string{"worker-a", "worker-b", "worker-c"}
	deps, dialer := newTestDeps(t, workers, "dx", "db1")
	for i := int32(1); i <= 40; i++ {
		for _, w := range workers {
			dialer.byWorker[w] = append(dialer.byWorker[w], proto.ReplicaInfo{Database: "db1", Chunk: i, Status: "COMPLETE"})
		}
	}

	findAll, err := NewFindAllJob(deps, "dx", false, false).Run(context.Background())
	require.NoError(t, err)

	// Every chunk is over-replicated (3 good copies, target 2), so the
	// wave fans all 40 chunks out concurrently, each one reading and
	// decrementing the same occupancy map inside purgeChunk.
	j := NewPurgeJob(deps, "dx", 2, findAll)
	results, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 40, "exactly one replica removed per chunk")
}

func TestPurgeJobNoopWhenAtTarget(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-a", "worker-b"}, "dx", "db1")
	dialer.byWorker["worker-a"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}
	dialer.byWorker["worker-b"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}

	findAll, err := NewFindAllJob(deps, "dx", false, false).Run(context.Background())
	require.NoError(t, err)

	j := NewPurgeJob(deps, "dx", 2, findAll)
	results, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
