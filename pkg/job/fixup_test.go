package job

import (
	"context"
	"testing"

	"github.com/lsst/qserv-replica/api/proto"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixUpJobReplicatesMissingDatabaseToPartialHolder(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-a", "worker-b"}, "dx", "db1")
	require.NoError(t, deps.Store.AddDatabase(context.Background(), config.Database{Name: "db2", Family: "dx"}))

	// worker-a holds both db1 and db2's chunk 5 (colocated); worker-b
	// only holds db1's copy, so it needs db2 replicated to it.
	dialer.byWorker["worker-a"] = []proto.ReplicaInfo{
		{Database: "db1", Chunk: 5, Status: "COMPLETE"},
		{Database: "db2", Chunk: 5, Status: "COMPLETE"},
	}
	dialer.byWorker["worker-b"] = []proto.ReplicaInfo{
		{Database: "db1", Chunk: 5, Status: "COMPLETE"},
	}

	findAll, err := NewFindAllJob(deps, "dx", false, false).Run(context.Background())
	require.NoError(t, err)
	require.False(t, findAll.IsColocated[5]["worker-b"])

	j := NewFixUpJob(deps, "dx", findAll)
	results, err := j.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "db2", results[0].Database)
	assert.Equal(t, "worker-b", results[0].DestWorker)
	assert.Equal(t, "worker-a", results[0].SourceWorker)
	assert.NoError(t, results[0].Err)
}

func TestFixUpJobNoopWhenAlreadyColocated(t *testing.T) {
	deps, dialer := newTestDeps(t, []string{"worker-a"}, "dx", "db1")
	dialer.byWorker["worker-a"] = []proto.ReplicaInfo{{Database: "db1", Chunk: 5, Status: "COMPLETE"}}

	findAll, err := NewFindAllJob(deps, "dx", false, false).Run(context.Background())
	require.NoError(t, err)

	j := NewFixUpJob(deps, "dx", findAll)
	results, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
