/*
Package healthmonitor implements the health monitor: on each
iteration it runs ClusterHealthJob, accumulates consecutive seconds of
non-response per worker per service, and decides whether zero, one, or
many workers look dead.

Only the single-candidate case evicts anything — DeleteWorkerJob runs
after the health monitor's one required rendezvous with the replication
loop (Restarter.StopReplication), and only after the loop has
genuinely quiesced. Any other worker-count outcome is logged and
otherwise ignored: multi-node failures are a human's problem, not an
automated one, by explicit design.
*/
package healthmonitor
