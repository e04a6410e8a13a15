package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/lsst/qserv-replica/pkg/config"
)

// ConfigFSM is the Raft finite state machine for the optional
// high-availability configuration-apply path.
// It applies committed log entries to a local config.Store.
type ConfigFSM struct {
	mu    sync.Mutex
	store config.Store
}

// NewConfigFSM creates an FSM that applies committed commands to store.
func NewConfigFSM(store config.Store) *ConfigFSM {
	return &ConfigFSM{store: store}
}

// Command is a single configuration mutation replicated through Raft.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Apply applies a committed Raft log entry to the local configuration store.
func (f *ConfigFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	switch cmd.Op {
	case "add_worker":
		var w config.Worker
		if err := json.Unmarshal(cmd.Data, &w); err != nil {
			return err
		}
		return f.store.AddWorker(ctx, w)

	case "remove_worker":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.RemoveWorker(ctx, name)

	case "disable_worker":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DisableWorker(ctx, name)

	case "add_family":
		var fam config.DatabaseFamily
		if err := json.Unmarshal(cmd.Data, &fam); err != nil {
			return err
		}
		return f.store.AddDatabaseFamily(ctx, fam)

	case "delete_family":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeleteDatabaseFamily(ctx, name)

	case "add_database":
		var db config.Database
		if err := json.Unmarshal(cmd.Data, &db); err != nil {
			return err
		}
		return f.store.AddDatabase(ctx, db)

	case "delete_database":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeleteDatabase(ctx, name)

	case "publish_database":
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.PublishDatabase(ctx, name)

	case "add_table":
		var req config.AddTableRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.store.AddTable(ctx, req)

	case "delete_table":
		var req struct{ Database, Name string }
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.store.DeleteTable(ctx, req.Database, req.Name)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot returns the full configuration as a point-in-time snapshot.
func (f *ConfigFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := &configSnapshot{}
	for _, w := range f.store.AllWorkers() {
		snap.Workers = append(snap.Workers, w)
	}
	for _, name := range f.store.Families() {
		fam, err := f.store.Family(name)
		if err != nil {
			return nil, err
		}
		snap.Families = append(snap.Families, fam)
	}
	for _, familyName := range f.store.Families() {
		for _, dbName := range f.store.Databases(familyName) {
			db, err := f.store.Database(dbName)
			if err != nil {
				return nil, err
			}
			snap.Databases = append(snap.Databases, db)
			snap.Tables = append(snap.Tables, f.store.Tables(dbName)...)
		}
	}
	return snap, nil
}

// Restore replaces the local store's contents with a decoded snapshot.
func (f *ConfigFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap configSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	for _, fam := range snap.Families {
		if err := f.store.AddDatabaseFamily(ctx, fam); err != nil {
			return err
		}
	}
	for _, db := range snap.Databases {
		if err := f.store.AddDatabase(ctx, db); err != nil {
			return err
		}
		if db.IsPublished {
			if err := f.store.PublishDatabase(ctx, db.Name); err != nil {
				return err
			}
		}
	}
	for _, t := range snap.Tables {
		var schema []config.Column
		for _, c := range t.Schema {
			if c.Name != config.ReservedTransColumn {
				schema = append(schema, c)
			}
		}
		req := config.AddTableRequest{
			Database:          t.Database,
			Name:              t.Name,
			IsPartitioned:     t.Kind == config.TablePartitioned,
			Schema:            schema,
			DirectorKeyColumn: t.DirectorKeyColumn,
			ChunkIDColumn:     t.ChunkIDColumn,
			SubChunkIDColumn:  t.SubChunkIDColumn,
			IsDirector:        t.IsDirector,
			LatitudeColumn:    t.LatitudeColumn,
			LongitudeColumn:   t.LongitudeColumn,
		}
		if err := f.store.AddTable(ctx, req); err != nil {
			return err
		}
	}
	for _, w := range snap.Workers {
		if err := f.store.AddWorker(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

type configSnapshot struct {
	Workers   []config.Worker
	Families  []config.DatabaseFamily
	Databases []config.Database
	Tables    []config.Table
}

func (s *configSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *configSnapshot) Release() {}
