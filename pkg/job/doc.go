/*
Package job implements the Job Layer. Every concrete
job embeds *Base, which provides the canonical
CREATED -> IN_PROGRESS -> FINISHED(ext) lifecycle, cooperative
cancellation, and progress reporting shared by all of them.

Jobs are plain Go values with a synchronous Run(ctx) method rather than
registered tasks in a central scheduler: the two long-running
coordinators that launch them (pkg/replicationloop and
pkg/healthmonitor) already enforce the required strict step ordering by
simply calling Run and waiting, so no separate scheduling layer earns
its keep here. Concurrency within a single job's fan-out (per-worker or
per-chunk) uses golang.org/x/sync/errgroup to bound concurrent
per-node work.

FindAllJob produces the FindAllResult consumed by every other planning
job (ReplicateJob, PurgeJob, FixUpJob, RebalanceJob, DeleteWorkerJob);
callers are expected to run it first within a replication-loop
iteration.

PurgeJob's wave/retry structure and per-removal occupancy bookkeeping
follow that rule exactly, including the "launches no jobs and
numFailedLocks == 0" success predicate and the requirement that a
victim's tracked occupancy decrements immediately so later picks in the
same wave see the updated load.
*/
package job
