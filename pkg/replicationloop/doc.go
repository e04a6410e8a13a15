/*
Package replicationloop implements the control plane's single
replication loop. One iteration launches, per family and
fully in parallel across families, FindAllJob then FixUpJob then
ReplicateJob then RebalanceJob then (when enabled) PurgeJob — each
followed by a QservSync barrier before the next step begins. Step order
within a family is strict; only the per-family fan-out within a step is
concurrent (golang.org/x/sync/errgroup), matching the rule that it "launches
one job per database family, waits for all of them, then runs a single
QservSync step."

Loop.StopReplication implements the one required rendezvous with
pkg/healthmonitor: it raises stopRequested and blocks until
Run's next iteration boundary clears it, guaranteeing the health
monitor never runs DeleteWorkerJob concurrently with an in-flight
replication pass.
*/
package replicationloop
