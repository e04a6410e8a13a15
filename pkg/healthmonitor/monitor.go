// Package healthmonitor implements the Health Monitor:
// a periodic task that runs alongside the replication loop, tracking
// consecutive seconds of non-response per worker per service and
// evicting the single worker that goes silent on both services.
package healthmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/lsst/qserv-replica/pkg/controller"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/rs/zerolog"
)

// Restarter is the subset of *replicationloop.Loop the monitor drives:
// it raises the rendezvous before an eviction and relaunches the loop
// afterward.
type Restarter interface {
	StopReplication(ctx context.Context) error
	SetFailed()
	Run(ctx context.Context)
}

// QservProbe performs the Qserv-side liveness check for one worker;
// its transport is out of scope. A nil probe
// makes every Qserv check fail, which is conservative but valid.
type QservProbe func(ctx context.Context, worker string) bool

// Monitor runs the health-check loop.
type Monitor struct {
	ctl            *controller.Controller
	loop           Restarter
	qservProbe     QservProbe
	permanentDelete bool
	log            zerolog.Logger

	mu           sync.Mutex
	silentQserv  map[string]int // seconds
	silentRepl   map[string]int
	stopped      bool
}

func New(ctl *controller.Controller, loop Restarter, qservProbe QservProbe, permanentDelete bool) *Monitor {
	return &Monitor{
		ctl:             ctl,
		loop:            loop,
		qservProbe:      qservProbe,
		permanentDelete: permanentDelete,
		log:             log.Component("health-monitor"),
		silentQserv:     make(map[string]int),
		silentRepl:      make(map[string]int),
	}
}

// Stop asks Run to exit at its next iteration boundary.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Run drives the monitor until Stop is called or a catastrophic error
// occurs, in which case it propagates Failed to the replication loop
// and exits.
func (m *Monitor) Run(ctx context.Context) {
	for {
		if m.isStopped() {
			return
		}
		skipSleep, err := m.iterate(ctx)
		if err != nil {
			m.log.Error().Err(err).Msg("health monitor iteration failed")
			m.loop.SetFailed()
			return
		}
		if skipSleep {
			continue
		}
		interval := time.Duration(m.ctl.Store.HealthProbeIntervalSec()) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// iterate runs one pass of the monitor's three steps. The returned bool
// is true when the loop must proceed immediately to the next
// iteration without sleeping (offlineReplication > 0 with no eviction
// candidate, so the control plane keeps tight watch on a degrading
// worker).
func (m *Monitor) iterate(ctx context.Context) (bool, error) {
	timeout := m.ctl.Store.WorkerResponseTimeoutSec()
	result, err := m.ctl.ClusterHealth(ctx, timeout, m.qservProbe)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	for worker, ok := range result.Qserv {
		if ok {
			m.silentQserv[worker] = 0
		} else {
			m.silentQserv[worker] += timeout
		}
	}
	for worker, ok := range result.Replication {
		if ok {
			m.silentRepl[worker] = 0
		} else {
			m.silentRepl[worker] += timeout
		}
	}
	evictTimeout := m.ctl.Store.WorkerEvictTimeoutSec()

	var candidates []string
	offlineReplication := 0
	for worker := range m.silentQserv {
		if m.silentRepl[worker] >= evictTimeout {
			offlineReplication++
		}
		if m.silentQserv[worker] >= evictTimeout && m.silentRepl[worker] >= evictTimeout {
			candidates = append(candidates, worker)
		}
	}
	m.mu.Unlock()

	switch {
	case len(candidates) == 0:
		return offlineReplication > 0, nil

	case len(candidates) == 1 && offlineReplication == 1:
		worker := candidates[0]
		if err := m.loop.StopReplication(ctx); err != nil {
			return false, err
		}
		_, err := m.ctl.DeleteWorker(ctx, worker, m.permanentDelete)
		if err != nil {
			m.log.Warn().Str("worker", worker).Err(err).Msg("worker eviction failed")
		}
		m.mu.Lock()
		m.silentQserv = make(map[string]int)
		m.silentRepl = make(map[string]int)
		m.mu.Unlock()
		go m.loop.Run(ctx)
		return true, nil

	default:
		m.log.Warn().Int("candidates", len(candidates)).Msg("too many workers offline; no automated eviction")
		return false, nil
	}
}
