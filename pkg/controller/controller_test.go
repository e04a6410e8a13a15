package controller

import (
	"context"
	"testing"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	store := config.NewMapBackend(config.DefaultParams())
	dir := t.TempDir()
	ledger, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	ctl := New(store, ledger)
	t.Cleanup(ctl.Shutdown)
	return ctl
}

func TestNewWiresStoreLedgerAndEvents(t *testing.T) {
	ctl := newTestController(t)
	assert.NotNil(t, ctl.Store)
	assert.NotNil(t, ctl.Ledger)
	assert.NotNil(t, ctl.Locker)
	assert.NotNil(t, ctl.Events)
}

func TestReplicasOnWorkerIsEmptyBeforeAnyFindAll(t *testing.T) {
	ctl := newTestController(t)
	assert.Empty(t, ctl.ReplicasOnWorker("worker-1"))
}

func TestFindAllOnEmptyFamilyReturnsEmptyResult(t *testing.T) {
	ctl := newTestController(t)
	require.NoError(t, ctl.Store.AddDatabaseFamily(context.Background(), config.DatabaseFamily{
		Name: "dx", NumStripes: 10, NumSubStripes: 2, Overlap: 0.01, ReplicationLevel: 2,
	}))

	res, err := ctl.FindAll(context.Background(), "dx", false, false)
	require.NoError(t, err)
	assert.Empty(t, res.Replicas)
}
