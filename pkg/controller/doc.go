/*
Package controller implements the Controller, the
object every job factory and both long-running loops are built on top
of. It bundles:

  - the Configuration Store (pkg/config), owned by the caller;
  - the chunk locker (pkg/locker), one per controller;
  - the job ledger (pkg/storage), owned by the caller;
  - the request-sending facility: a pooled *wire.Client per worker
    (dialer.go), re-dialed only when a worker's configured endpoint
    changes;
  - the database-services cache (replicacache.go): the most recently
    observed per-worker replica set, refreshed by FindAllJob runs.

Controller does not itself decide when to run a job; pkg/replicationloop
and pkg/healthmonitor hold that policy and call these factory methods
directly, waiting synchronously on each job's Run the way the
step-and-sync loop requires.
*/
package controller
