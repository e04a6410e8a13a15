package manager

import (
	"context"
	"encoding/json"

	"github.com/lsst/qserv-replica/pkg/config"
)

// RaftStore adapts a Manager to the config.Store interface: read
// accessors are served directly from this replica's local store,
// while every structural mutation is appended to the Raft log and
// only takes effect once ConfigFSM.Apply has committed it, keeping
// every controller replica's store in sync. Controllers, the ingest
// coordinator and the replication loop all talk to config.Store
// through this type whenever controller.ha_enabled is set, with no
// other code aware that mutations are now replicated.
type RaftStore struct {
	config.Store
	mgr *Manager
}

// NewRaftStore returns a config.Store backed by mgr's Raft-replicated
// apply path. mgr must already be bootstrapped or have joined a
// cluster.
func NewRaftStore(mgr *Manager) *RaftStore {
	return &RaftStore{Store: mgr.store, mgr: mgr}
}

func (s *RaftStore) apply(op string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.mgr.Apply(Command{Op: op, Data: data})
}

func (s *RaftStore) AddDatabaseFamily(_ context.Context, f config.DatabaseFamily) error {
	return s.apply("add_family", f)
}

func (s *RaftStore) DeleteDatabaseFamily(_ context.Context, name string) error {
	return s.apply("delete_family", name)
}

func (s *RaftStore) AddDatabase(_ context.Context, db config.Database) error {
	return s.apply("add_database", db)
}

func (s *RaftStore) DeleteDatabase(_ context.Context, name string) error {
	return s.apply("delete_database", name)
}

func (s *RaftStore) PublishDatabase(_ context.Context, name string) error {
	return s.apply("publish_database", name)
}

func (s *RaftStore) AddTable(_ context.Context, req config.AddTableRequest) error {
	return s.apply("add_table", req)
}

func (s *RaftStore) DeleteTable(_ context.Context, database, name string) error {
	return s.apply("delete_table", struct{ Database, Name string }{database, name})
}

func (s *RaftStore) AddWorker(_ context.Context, w config.Worker) error {
	return s.apply("add_worker", w)
}

func (s *RaftStore) RemoveWorker(_ context.Context, name string) error {
	return s.apply("remove_worker", name)
}

func (s *RaftStore) DisableWorker(_ context.Context, name string) error {
	return s.apply("disable_worker", name)
}

// SetWorkerEndpoint bypasses Raft: a closure-typed mutation cannot be
// marshaled onto the log, so this one administrative update applies
// directly to the local store rather than being replicated. ConfigFSM
// has no corresponding command.
func (s *RaftStore) SetWorkerEndpoint(ctx context.Context, name string, mutate func(*config.Worker)) error {
	return s.Store.SetWorkerEndpoint(ctx, name, mutate)
}

// Close closes the underlying local store. Callers that constructed
// the wrapped Manager own its Raft shutdown separately.
func (s *RaftStore) Close() error { return s.Store.Close() }
