package healthmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/controller"
	"github.com/lsst/qserv-replica/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRestarter is a Restarter stand-in; Monitor never reaches it in
// these tests since no worker is ever registered, so it only needs to
// record whether it was invoked.
type fakeRestarter struct {
	stopReplicationCalls int
	setFailedCalls        int
	runCalls              int
}

func (f *fakeRestarter) StopReplication(ctx context.Context) error {
	f.stopReplicationCalls++
	return nil
}

func (f *fakeRestarter) SetFailed() { f.setFailedCalls++ }

func (f *fakeRestarter) Run(ctx context.Context) { f.runCalls++ }

func newTestMonitor(t *testing.T, probeIntervalSec int) (*Monitor, *fakeRestarter) {
	t.Helper()
	params := config.DefaultParams()
	params.HealthProbeIntervalSec = probeIntervalSec
	store := config.NewMapBackend(params)
	ledger, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	ctl := controller.New(store, ledger)
	t.Cleanup(ctl.Shutdown)

	restarter := &fakeRestarter{}
	probe := func(ctx context.Context, worker string) bool { return true }
	return New(ctl, restarter, probe, false), restarter
}

func TestStopIsObservedByRun(t *testing.T) {
	m, _ := newTestMonitor(t, 0)

	done := make(chan struct{})
	go func() { m.Run(context.Background()); close(done) }()

	time.Sleep(20 * time.Millisecond)
	m.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after Stop()")
	}
}

func TestIterateWithNoWorkersNeitherEvictsNorSkipsSleep(t *testing.T) {
	m, restarter := newTestMonitor(t, 30)
	skipSleep, err := m.iterate(context.Background())
	require.NoError(t, err)
	assert.False(t, skipSleep)
	assert.Zero(t, restarter.stopReplicationCalls)
	assert.Zero(t, restarter.runCalls)
}

func TestStopBeforeRunExitsImmediately(t *testing.T) {
	m, _ := newTestMonitor(t, 30)
	m.Stop()
	assert.True(t, m.isStopped())

	done := make(chan struct{})
	go func() { m.Run(context.Background()); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should exit immediately when already stopped")
	}
}
