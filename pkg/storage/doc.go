/*
Package storage provides the replication controller's job ledger store.

BoltStore keeps JobRecord and RequestRecord values and returns them
again after the store is reopened on the same directory. The
controller (pkg/controller) is handed a Store as its ledger, but no
code in this module writes job or request records to it: jobs and
requests are tracked in memory only, and their history does not
survive a controller restart. This is separate from the Configuration
Store (pkg/config), which describes the cluster's desired state.

# Backend

BoltStore implements Store on top of a single BoltDB file with two
buckets, "jobs" and "requests", keyed by record ID and storing JSON.
This follows the same bucket-per-entity, JSON-marshal pattern used
throughout this codebase's other BoltDB-backed stores.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	store.PutJob(storage.JobRecord{ID: id, Kind: "REPLICATE", State: "IN_PROGRESS"})

# Optional HA

When the controller runs in its optional Raft-backed high-availability
mode (pkg/manager), configuration mutations are additionally replicated
through the Raft log before being applied to the in-memory
configuration store; the job ledger itself is not Raft-replicated,
since only one controller instance runs jobs at a time (the Raft
leader).
*/
package storage
