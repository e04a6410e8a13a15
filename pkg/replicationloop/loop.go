// Package replicationloop implements the Replication Loop: a single periodic task that, once per iteration and once per
// database family, runs FindAllJob, FixUpJob, ReplicateJob,
// RebalanceJob and, when enabled, PurgeJob, each followed by a
// QservSync barrier, then sleeps replicationIntervalSec before the
// next iteration.
package replicationloop

import (
	"context"
	"sync"
	"time"

	"github.com/lsst/qserv-replica/pkg/controller"
	"github.com/lsst/qserv-replica/pkg/job"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/lsst/qserv-replica/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// QservSync performs the post-step barrier sync with a qserv czar
// instance for one family. Its transport is out of this repository's
// scope; callers supply a
// concrete implementation, with a no-op default suitable for tests.
type QservSync func(ctx context.Context, family string) error

// Loop drives the replication loop's single goroutine. It is always
// constructed with Purge disabled or enabled up front; toggling it
// mid-run is not supported.
type Loop struct {
	ctl     *controller.Controller
	sync    QservSync
	purge   bool
	numIter int
	log     zerolog.Logger

	mu                sync.Mutex
	stopRequested     bool
	failed            bool
	stopReplicationCh chan struct{}
	// familyResults caches the current iteration's FindAllJob output
	// per family so later steps in the same iteration reuse it rather
	// than re-querying every worker.
	familyResults map[string]*job.FindAllResult
}

// New creates a Loop. numIter == 0 means run forever until Stop.
func New(ctl *controller.Controller, sync QservSync, purge bool, numIter int) *Loop {
	if sync == nil {
		sync = func(context.Context, string) error { return nil }
	}
	return &Loop{
		ctl:     ctl,
		sync:    sync,
		purge:   purge,
		numIter: numIter,
		log:     log.Component("replication-loop"),
	}
}

// Stop raises stopRequested; Run observes it at the top of its next
// iteration, and per-family steps not yet started skip their work. The
// sleep between iterations is not cut short by Stop.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopRequested = true
}

// StopReplication implements the health monitor's rendezvous: it raises stopRequested and blocks until Run acknowledges by
// clearing it on exit.
func (l *Loop) StopReplication(ctx context.Context) error {
	l.mu.Lock()
	if l.stopReplicationCh == nil {
		l.stopReplicationCh = make(chan struct{})
	}
	ch := l.stopReplicationCh
	l.stopRequested = true
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) isStopRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopRequested
}

func (l *Loop) isFailed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}

// Failed reports whether a catastrophic error has halted the loop
//.
func (l *Loop) Failed() bool { return l.isFailed() }

func (l *Loop) setFailed() {
	l.mu.Lock()
	l.failed = true
	l.mu.Unlock()
}

// SetFailed lets the health monitor propagate a catastrophic error it
// observed into the loop's shared failed flag.
func (l *Loop) SetFailed() { l.setFailed() }

// onExit clears stopRequested and signals any pending StopReplication
// waiter: on exit it clears stopRequested so the health monitor
// learns that the loop has quiesced.
func (l *Loop) onExit() {
	l.mu.Lock()
	l.stopRequested = false
	ch := l.stopReplicationCh
	l.stopReplicationCh = nil
	l.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Run executes the loop until stopped, failed, or numIter completed
// iterations. It blocks the calling goroutine; run it in a goroutine
// of the caller's choosing (cmd/qservctl's master command does this).
func (l *Loop) Run(ctx context.Context) {
	defer l.onExit()
	completed := 0
	for {
		if l.isStopRequested() || l.isFailed() {
			return
		}
		if err := l.iterate(ctx); err != nil {
			l.log.Error().Err(err).Msg("replication loop iteration failed")
			l.setFailed()
			return
		}
		completed++
		if l.numIter != 0 && completed >= l.numIter {
			return
		}

		interval := time.Duration(l.ctl.Store.ReplicationIntervalSec()) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (l *Loop) iterate(ctx context.Context) error {
	families := l.ctl.Store.Families()

	if err := l.perFamily(ctx, families, func(ctx context.Context, family string) error {
		res, err := l.ctl.FindAll(ctx, family, true, false)
		if err != nil {
			return err
		}
		l.mu.Lock()
		if l.familyResults == nil {
			l.familyResults = make(map[string]*job.FindAllResult)
		}
		l.familyResults[family] = res
		l.mu.Unlock()
		return nil
	}); err != nil {
		return err
	}
	if err := l.syncAll(ctx, families); err != nil {
		return err
	}

	if err := l.perFamily(ctx, families, func(ctx context.Context, family string) error {
		_, err := l.ctl.FixUp(ctx, family, l.familyResult(family))
		return err
	}); err != nil {
		return err
	}
	if err := l.syncAll(ctx, families); err != nil {
		return err
	}

	if err := l.perFamily(ctx, families, func(ctx context.Context, family string) error {
		level, err := l.ctl.Store.ReplicationLevel(family)
		if err != nil {
			return err
		}
		_, err = l.ctl.Replicate(ctx, family, level, l.familyResult(family))
		return err
	}); err != nil {
		return err
	}
	if err := l.syncAll(ctx, families); err != nil {
		return err
	}

	if err := l.perFamily(ctx, families, func(ctx context.Context, family string) error {
		_, err := l.ctl.Rebalance(ctx, family, false, l.familyResult(family))
		return err
	}); err != nil {
		return err
	}
	if err := l.syncAll(ctx, families); err != nil {
		return err
	}

	if l.purge {
		if err := l.perFamily(ctx, families, func(ctx context.Context, family string) error {
			level, err := l.ctl.Store.ReplicationLevel(family)
			if err != nil {
				return err
			}
			_, err = l.ctl.Purge(ctx, family, level, l.familyResult(family))
			return err
		}); err != nil {
			return err
		}
		if err := l.syncAll(ctx, families); err != nil {
			return err
		}
	}

	metrics.ReplicationCyclesTotal.Inc()
	return nil
}

func (l *Loop) familyResult(family string) *job.FindAllResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.familyResults[family]
}

// perFamily launches fn once per family and waits for all. A family's
// fn is skipped if stopRequested or failed is already raised when its
// goroutine starts; fn calls already running are not cancelled.
func (l *Loop) perFamily(ctx context.Context, families []string, fn func(ctx context.Context, family string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, family := range families {
		family := family
		g.Go(func() error {
			if l.isStopRequested() || l.isFailed() {
				return nil
			}
			return fn(gctx, family)
		})
	}
	return g.Wait()
}

func (l *Loop) syncAll(ctx context.Context, families []string) error {
	return l.perFamily(ctx, families, func(ctx context.Context, family string) error {
		syncCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		return l.sync(syncCtx, family)
	})
}
