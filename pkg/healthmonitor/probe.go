package healthmonitor

import (
	"context"
	"fmt"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/health"
)

// NewTCPQservProbe builds a QservProbe that dials each worker's xrootd
// data server directly (pkg/health's TCPChecker), the simplest strategy
// for a transport this package leaves open. Deployments whose Qserv
// endpoint answers HTTP instead can substitute NewHTTPQservProbe.
func NewTCPQservProbe(store config.Store) QservProbe {
	return func(ctx context.Context, worker string) bool {
		w, err := store.Worker(worker)
		if err != nil {
			return false
		}
		checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", w.QservHost, w.QservPort))
		return checker.Check(ctx).Healthy
	}
}

// NewHTTPQservProbe builds a QservProbe backed by pkg/health's
// HTTPChecker, for deployments whose xrootd endpoint fronts an HTTP
// admin/status page.
func NewHTTPQservProbe(store config.Store, path string) QservProbe {
	return func(ctx context.Context, worker string) bool {
		w, err := store.Worker(worker)
		if err != nil {
			return false
		}
		url := fmt.Sprintf("http://%s:%d%s", w.QservHost, w.QservPort, path)
		return health.NewHTTPChecker(url).Check(ctx).Healthy
	}
}
