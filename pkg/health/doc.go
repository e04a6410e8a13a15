/*
Package health provides the liveness probes pkg/healthmonitor uses to
watch worker services. Each worker exposes two services the
control plane cares about independently — its replication/file service
and the Qserv xrootd/czar endpoint it hosts chunks for — and either can
go silent without the other failing.

Checker is the common probe interface; HTTPChecker and TCPChecker are
the two concrete strategies a deployment picks between depending on
whether a worker's Qserv endpoint answers HTTP (czar admin API) or only
accepts raw TCP connections (xrootd). Status implements the
failures-before-unhealthy hysteresis describing a single probe's
history; pkg/healthmonitor keeps its own per-worker second-counters
instead of embedding Status directly, since elapsed time is counted
seconds of silence rather than consecutive check counts.

	checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", worker.SvcHost, worker.SvcPort))
	result := checker.Check(ctx)
	if !result.Healthy {
		// accumulate into pkg/healthmonitor's silence counters
	}
*/
package health
