/*
Package manager implements the optional Raft-backed high-availability
mode for the Configuration Store.

A single controller instance normally owns the Configuration Store
directly through config.Open. When run with more than one controller
replica for availability, each replica instead wraps its local
config.Store in a Manager; every mutation is proposed as a Command,
agreed on by the Raft replicas, and only then applied to each
replica's local store by ConfigFSM.Apply. A replica promoted to
leader after a failover therefore already holds up-to-date
configuration instead of needing to re-read a possibly stale backend.

# Architecture

	Controller (leader)
	     │ Manager.Apply(Command)
	     ▼
	Raft log  ──replicate──▶  Raft log (followers)
	     │                         │
	     ▼                         ▼
	ConfigFSM.Apply          ConfigFSM.Apply
	     │                         │
	     ▼                         ▼
	local config.Store       local config.Store

Bootstrap starts a new single-node cluster; AddVoter, called on the
leader, admits further replicas. IsLeader/LeaderAddr let the
controller's replication loop and health monitor (which must run on
exactly one replica) determine whether they are active.

# Non-goals

This package does not replicate the job ledger (pkg/storage): only one
controller replica runs jobs at a time (the Raft leader), so job state
does not need cross-replica agreement.
*/
package manager
