package job

import (
	"context"
	"sync"
	"time"

	"github.com/lsst/qserv-replica/api/proto"
	"golang.org/x/sync/errgroup"
)

// ClusterHealthResult is ClusterHealthJob's output: a
// responsiveness map per service, per worker. false means the probe
// did not complete within the job's timeout.
type ClusterHealthResult struct {
	Qserv       map[string]bool
	Replication map[string]bool
}

// ClusterHealthJob concurrently probes every configured worker's Qserv
// and REPLICATION services, bounded by probeTimeoutSec. It has no
// family (it is not chunk-scoped), so its Base carries an empty family.
type ClusterHealthJob struct {
	*Base
	deps           Deps
	probeTimeout   time.Duration
	qservProbe     func(ctx context.Context, worker string) bool
}

// NewClusterHealthJob. qservProbe performs the Qserv-side liveness
// check.
func NewClusterHealthJob(deps Deps, probeTimeoutSec int, qservProbe func(ctx context.Context, worker string) bool) *ClusterHealthJob {
	return &ClusterHealthJob{
		Base:         NewBase("ClusterHealthJob", ""),
		deps:         deps,
		probeTimeout: time.Duration(probeTimeoutSec) * time.Second,
		qservProbe:   qservProbe,
	}
}

func (j *ClusterHealthJob) Run(ctx context.Context) (*ClusterHealthResult, error) {
	runCtx := j.Start(ctx)
	workers := j.deps.Store.AllWorkers()

	res := &ClusterHealthResult{Qserv: make(map[string]bool), Replication: make(map[string]bool)}
	var mu sync.Mutex
	j.SetProgress(0, len(workers)*2)
	var completed int

	g, _ := errgroup.WithContext(runCtx)
	g.SetLimit(maxInFlight(len(workers) * 2))
	for _, w := range workers {
		w := w
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(runCtx, j.probeTimeout)
			defer cancel()
			ok := j.qservProbe != nil && j.qservProbe(probeCtx, w.Name)
			mu.Lock()
			res.Qserv[w.Name] = ok
			completed++
			j.SetProgress(completed, len(workers)*2)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(runCtx, j.probeTimeout)
			defer cancel()
			conn, err := j.deps.Dialer.Dial(probeCtx, w.Name)
			ok := false
			if err == nil {
				_, serr := conn.ServiceStatus(probeCtx, &proto.ServiceStatusRequest{})
				ok = serr == nil
			}
			mu.Lock()
			res.Replication[w.Name] = ok
			completed++
			j.SetProgress(completed, len(workers)*2)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	j.Finish(ExtSuccess, nil)
	return res, nil
}
