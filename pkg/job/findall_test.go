package job

import (
	"context"
	"testing"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAllJobAssemblesColocationView(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-1", "worker-2"}, "dx", "db1")

	dialer.byWorker["worker-1"] = []proto.ReplicaInfo{
		{Database: "db1", Chunk: 5, Status: "COMPLETE"},
	}
	dialer.byWorker["worker-2"] = []proto.ReplicaInfo{
		{Database: "db1", Chunk: 5, Status: "COMPLETE"},
	}

	j := NewFindAllJob(deps, "dx", true, false)
	res, err := j.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.IsComplete[5]["worker-1"])
	assert.True(t, res.IsColocated[5]["worker-1"])
	assert.True(t, res.IsGood[5]["worker-1"])
	assert.True(t, res.IsGood[5]["worker-2"])

	state, ext, _ := j.State()
	assert.Equal(t, Finished, state)
	assert.Equal(t, ExtSuccess, ext)
}

func TestFindAllJobToleratesUnreachableWorker(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-1", "worker-2"}, "dx", "db1")
	dialer.unreachable["worker-2"] = true
	dialer.byWorker["worker-1"] = []proto.ReplicaInfo{
		{Database: "db1", Chunk: 5, Status: "COMPLETE"},
	}

	j := NewFindAllJob(deps, "dx", false, false)
	res, err := j.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.IsGood[5]["worker-1"])
	assert.False(t, res.IsGood[5]["worker-2"], "an unreachable worker never reports the chunk as held")

	state, ext, _ := j.State()
	assert.Equal(t, Finished, state)
	assert.Equal(t, ExtSuccess, ext)
}

func TestFindAllJobExcludesDummyChunkFromDerivedView(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-1"}, "dx", "db1")
	dialer.byWorker["worker-1"] = []proto.ReplicaInfo{
		{Database: "db1", Chunk: int32(chunk.Dummy), Status: "COMPLETE"},
	}

	j := NewFindAllJob(deps, "dx", false, false)
	res, err := j.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.IsGood[int32(chunk.Dummy)])
	assert.NotContains(t, res.Databases, int32(chunk.Dummy))
}

func TestFindAllJobSavesReplicaInfoWhenRequested(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-1"}, "dx", "db1")
	dialer.byWorker["worker-1"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 1, Status: "COMPLETE"}}

	j := NewFindAllJob(deps, "dx", true, false)
	_, err := j.Run(context.Background())
	require.NoError(t, err)

	cache := deps.ReplicaCache.(*fakeReplicaCache)
	assert.Len(t, cache.ReplicasOnWorker("worker-1"), 1)
}
