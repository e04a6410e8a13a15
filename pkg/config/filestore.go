package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// fileDoc is the on-disk TOML shape for the file: configUrl backend
//.
type fileDoc struct {
	Common   tomlCommon     `toml:"common"`
	Workers  []Worker       `toml:"worker"`
	Families []DatabaseFamily `toml:"family"`
	Databases []Database    `toml:"database"`
	Tables   []tomlTable    `toml:"table"`
}

type tomlCommon struct {
	RequestBufSizeBytes        int `toml:"request_buf_size_bytes"`
	RequestRetryIntervalSec    int `toml:"request_retry_interval_sec"`
	ControllerNumThreads       int `toml:"controller_num_threads"`
	ControllerRequestTimeoutSec int `toml:"controller_request_timeout_sec"`
	ControllerJobTimeoutSec    int `toml:"controller_job_timeout_sec"`
	ControllerJobHeartbeatSec  int `toml:"controller_job_heartbeat_sec"`
	WorkerNumProcessingThreads int `toml:"worker_num_processing_threads"`
	FsNumProcessingThreads     int `toml:"fs_num_processing_threads"`
	FsBufSizeBytes             int `toml:"fs_buf_size_bytes"`
	ReplicationIntervalSec     int `toml:"replication_interval_sec"`
	WorkerResponseTimeoutSec   int `toml:"worker_response_timeout_sec"`
	WorkerEvictTimeoutSec      int `toml:"worker_evict_timeout_sec"`
	HealthProbeIntervalSec     int `toml:"health_probe_interval_sec"`
}

// tomlTable flattens Table plus its parent database name for array-of-tables encoding.
type tomlTable struct {
	Database          string   `toml:"database"`
	Name              string   `toml:"name"`
	Kind              string   `toml:"kind"`
	Schema            []Column `toml:"schema"`
	DirectorKeyColumn string   `toml:"director_key_column,omitempty"`
	ChunkIDColumn     string   `toml:"chunk_id_column,omitempty"`
	SubChunkIDColumn  string   `toml:"sub_chunk_id_column,omitempty"`
	IsDirector        bool     `toml:"is_director,omitempty"`
	LatitudeColumn    string   `toml:"latitude_column,omitempty"`
	LongitudeColumn   string   `toml:"longitude_column,omitempty"`
}

// FileBackend is a TOML-file-backed Store: the file is the single
// source of truth, parsed with BurntSushi/toml into the shared
// memStore, persisted back to disk on every mutation, and watched
// with viper/fsnotify. A manual edit of the file is only logged; it is
// not reloaded into the running store.
type FileBackend struct {
	*memStore

	path string
	wmu  sync.Mutex // serializes persist() writes
	v    *viper.Viper
	log  zerolog.Logger
}

// LoadFileBackend parses path as TOML and returns a Store backed by it.
func LoadFileBackend(path string) (*FileBackend, error) {
	var doc fileDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, ctlerror.Wrap(ctlerror.InvalidArgument, err, "parsing configuration file %q", path)
	}

	p := DefaultParams()
	applyCommon(&p, doc.Common)

	ms := newMemStore(p)
	for _, f := range doc.Families {
		if err := ms.addDatabaseFamilyLocked(f); err != nil {
			return nil, err
		}
	}
	for _, db := range doc.Databases {
		if err := ms.addDatabaseLocked(db); err != nil {
			return nil, err
		}
		if db.IsPublished {
			// addDatabaseLocked always inserts unpublished; re-apply the flag directly.
			d := ms.databases[db.Name]
			d.IsPublished = true
			ms.databases[db.Name] = d
		}
	}
	for _, t := range doc.Tables {
		req := AddTableRequest{
			Database:          t.Database,
			Name:              t.Name,
			IsPartitioned:     t.Kind == string(TablePartitioned),
			Schema:            trimReserved(t.Schema),
			DirectorKeyColumn: t.DirectorKeyColumn,
			ChunkIDColumn:     t.ChunkIDColumn,
			SubChunkIDColumn:  t.SubChunkIDColumn,
			IsDirector:        t.IsDirector,
			LatitudeColumn:    t.LatitudeColumn,
			LongitudeColumn:   t.LongitudeColumn,
		}
		if err := ms.addTableLocked(req); err != nil {
			return nil, err
		}
	}
	for _, w := range doc.Workers {
		if err := ms.addWorkerLocked(w); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)

	b := &FileBackend{memStore: ms, path: path, v: v, log: log.Component("config.file")}
	v.OnConfigChange(func(fsnotify.Event) {
		b.log.Info().Str("path", path).Msg("configuration file changed on disk; restart to reload")
	})
	v.WatchConfig()

	return b, nil
}

func applyCommon(p *Params, c tomlCommon) {
	set := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	set(&p.RequestBufSizeBytes, c.RequestBufSizeBytes)
	set(&p.RequestRetryIntervalSec, c.RequestRetryIntervalSec)
	set(&p.ControllerNumThreads, c.ControllerNumThreads)
	set(&p.ControllerRequestTimeoutSec, c.ControllerRequestTimeoutSec)
	set(&p.ControllerJobTimeoutSec, c.ControllerJobTimeoutSec)
	set(&p.ControllerJobHeartbeatSec, c.ControllerJobHeartbeatSec)
	set(&p.WorkerNumProcessingThreads, c.WorkerNumProcessingThreads)
	set(&p.FsNumProcessingThreads, c.FsNumProcessingThreads)
	set(&p.FsBufSizeBytes, c.FsBufSizeBytes)
	set(&p.ReplicationIntervalSec, c.ReplicationIntervalSec)
	set(&p.WorkerResponseTimeoutSec, c.WorkerResponseTimeoutSec)
	set(&p.WorkerEvictTimeoutSec, c.WorkerEvictTimeoutSec)
	set(&p.HealthProbeIntervalSec, c.HealthProbeIntervalSec)
}

func trimReserved(cols []Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.Name == ReservedTransColumn {
			continue
		}
		out = append(out, c)
	}
	return out
}

// persist rewrites the whole TOML file from the current in-memory state.
func (b *FileBackend) persist() error {
	b.wmu.Lock()
	defer b.wmu.Unlock()

	b.mu.RLock()
	doc := fileDoc{Common: commonFromParams(b.params)}
	for _, w := range b.AllWorkers() {
		doc.Workers = append(doc.Workers, w)
	}
	for _, name := range b.Families() {
		f, _ := b.Family(name)
		doc.Families = append(doc.Families, f)
	}
	for dbName, db := range b.databases {
		doc.Databases = append(doc.Databases, db)
		for _, t := range b.tables[dbName] {
			doc.Tables = append(doc.Tables, tomlTable{
				Database:          t.Database,
				Name:              t.Name,
				Kind:              string(t.Kind),
				Schema:            trimReserved(t.Schema),
				DirectorKeyColumn: t.DirectorKeyColumn,
				ChunkIDColumn:     t.ChunkIDColumn,
				SubChunkIDColumn:  t.SubChunkIDColumn,
				IsDirector:        t.IsDirector,
				LatitudeColumn:    t.LatitudeColumn,
				LongitudeColumn:   t.LongitudeColumn,
			})
		}
	}
	b.mu.RUnlock()

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("rewriting configuration file %q: %w", b.path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(doc)
}

func commonFromParams(p Params) tomlCommon {
	return tomlCommon{
		RequestBufSizeBytes:         p.RequestBufSizeBytes,
		RequestRetryIntervalSec:     p.RequestRetryIntervalSec,
		ControllerNumThreads:        p.ControllerNumThreads,
		ControllerRequestTimeoutSec: p.ControllerRequestTimeoutSec,
		ControllerJobTimeoutSec:     p.ControllerJobTimeoutSec,
		ControllerJobHeartbeatSec:   p.ControllerJobHeartbeatSec,
		WorkerNumProcessingThreads:  p.WorkerNumProcessingThreads,
		FsNumProcessingThreads:      p.FsNumProcessingThreads,
		FsBufSizeBytes:              p.FsBufSizeBytes,
		ReplicationIntervalSec:      p.ReplicationIntervalSec,
		WorkerResponseTimeoutSec:    p.WorkerResponseTimeoutSec,
		WorkerEvictTimeoutSec:       p.WorkerEvictTimeoutSec,
		HealthProbeIntervalSec:      p.HealthProbeIntervalSec,
	}
}

func (b *FileBackend) AddDatabaseFamily(_ context.Context, f DatabaseFamily) error {
	b.mu.Lock()
	err := b.addDatabaseFamilyLocked(f)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) DeleteDatabaseFamily(_ context.Context, name string) error {
	b.mu.Lock()
	err := b.deleteDatabaseFamilyLocked(name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) AddDatabase(_ context.Context, db Database) error {
	b.mu.Lock()
	err := b.addDatabaseLocked(db)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) DeleteDatabase(_ context.Context, name string) error {
	b.mu.Lock()
	err := b.deleteDatabaseLocked(name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) PublishDatabase(_ context.Context, name string) error {
	b.mu.Lock()
	err := b.publishDatabaseLocked(name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) AddTable(_ context.Context, req AddTableRequest) error {
	b.mu.Lock()
	err := b.addTableLocked(req)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) DeleteTable(_ context.Context, database, name string) error {
	b.mu.Lock()
	err := b.deleteTableLocked(database, name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) AddWorker(_ context.Context, w Worker) error {
	b.mu.Lock()
	err := b.addWorkerLocked(w)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) RemoveWorker(_ context.Context, name string) error {
	b.mu.Lock()
	err := b.removeWorkerLocked(name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) DisableWorker(_ context.Context, name string) error {
	b.mu.Lock()
	err := b.disableWorkerLocked(name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) SetWorkerEndpoint(_ context.Context, name string, mutate func(*Worker)) error {
	b.mu.Lock()
	err := b.setWorkerEndpointLocked(name, mutate)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.persist()
}

func (b *FileBackend) Close() error { return nil }
