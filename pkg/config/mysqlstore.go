package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/lsst/qserv-replica/pkg/ctlerror"
)

// MySQLBackend is a relational-schema-backed Store: the full configuration lives in a
// single `config_kv` table (scalar params) plus `worker`, `family`,
// `config_database` and `config_table` tables, loaded once into the shared
// memStore and written through on every mutation inside one
// transaction per call.
type MySQLBackend struct {
	*memStore
	db *sql.DB
}

// LoadMySQLBackend opens dsn and loads the configuration schema,
// creating it if absent.
func LoadMySQLBackend(dsn string) (*MySQLBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, ctlerror.Wrap(ctlerror.Internal, err, "opening mysql configuration database")
	}
	if err := db.Ping(); err != nil {
		return nil, ctlerror.Wrap(ctlerror.Internal, err, "connecting to mysql configuration database")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}

	p := DefaultParams()
	if err := loadParams(db, &p); err != nil {
		return nil, err
	}
	ms := newMemStore(p)
	if err := loadWorkers(db, ms); err != nil {
		return nil, err
	}
	if err := loadFamilies(db, ms); err != nil {
		return nil, err
	}
	if err := loadDatabases(db, ms); err != nil {
		return nil, err
	}
	if err := loadTables(db, ms); err != nil {
		return nil, err
	}

	return &MySQLBackend{memStore: ms, db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS config_kv (name VARCHAR(64) PRIMARY KEY, value BIGINT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS worker (name VARCHAR(64) PRIMARY KEY, doc JSON NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS family (name VARCHAR(64) PRIMARY KEY, doc JSON NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS config_database (name VARCHAR(128) PRIMARY KEY, doc JSON NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS config_table (database_name VARCHAR(128), name VARCHAR(128), doc JSON NOT NULL, PRIMARY KEY (database_name, name))`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return ctlerror.Wrap(ctlerror.Internal, err, "creating configuration schema")
		}
	}
	return nil
}

func loadParams(db *sql.DB, p *Params) error {
	rows, err := db.Query(`SELECT name, value FROM config_kv`)
	if err != nil {
		return ctlerror.Wrap(ctlerror.Internal, err, "loading scalar parameters")
	}
	defer rows.Close()

	fields := map[string]*int{
		"request_buf_size_bytes":         &p.RequestBufSizeBytes,
		"request_retry_interval_sec":     &p.RequestRetryIntervalSec,
		"controller_num_threads":         &p.ControllerNumThreads,
		"controller_request_timeout_sec": &p.ControllerRequestTimeoutSec,
		"controller_job_timeout_sec":     &p.ControllerJobTimeoutSec,
		"controller_job_heartbeat_sec":   &p.ControllerJobHeartbeatSec,
		"worker_num_processing_threads":  &p.WorkerNumProcessingThreads,
		"fs_num_processing_threads":      &p.FsNumProcessingThreads,
		"fs_buf_size_bytes":              &p.FsBufSizeBytes,
		"replication_interval_sec":       &p.ReplicationIntervalSec,
		"worker_response_timeout_sec":    &p.WorkerResponseTimeoutSec,
		"worker_evict_timeout_sec":       &p.WorkerEvictTimeoutSec,
		"health_probe_interval_sec":      &p.HealthProbeIntervalSec,
	}
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return err
		}
		if dst, ok := fields[name]; ok {
			*dst = value
		}
	}
	return rows.Err()
}

func loadWorkers(db *sql.DB, ms *memStore) error {
	rows, err := db.Query(`SELECT doc FROM worker`)
	if err != nil {
		return ctlerror.Wrap(ctlerror.Internal, err, "loading workers")
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		var w Worker
		if err := json.Unmarshal(raw, &w); err != nil {
			return err
		}
		if err := ms.addWorkerLocked(w); err != nil {
			return err
		}
	}
	return rows.Err()
}

func loadFamilies(db *sql.DB, ms *memStore) error {
	rows, err := db.Query(`SELECT doc FROM family`)
	if err != nil {
		return ctlerror.Wrap(ctlerror.Internal, err, "loading families")
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		var f DatabaseFamily
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		if err := ms.addDatabaseFamilyLocked(f); err != nil {
			return err
		}
	}
	return rows.Err()
}

func loadDatabases(db *sql.DB, ms *memStore) error {
	rows, err := db.Query(`SELECT doc FROM config_database`)
	if err != nil {
		return ctlerror.Wrap(ctlerror.Internal, err, "loading databases")
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		var d Database
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		published := d.IsPublished
		d.IsPublished = false
		if err := ms.addDatabaseLocked(d); err != nil {
			return err
		}
		if published {
			dd := ms.databases[d.Name]
			dd.IsPublished = true
			ms.databases[d.Name] = dd
		}
	}
	return rows.Err()
}

func loadTables(db *sql.DB, ms *memStore) error {
	rows, err := db.Query(`SELECT doc FROM config_table`)
	if err != nil {
		return ctlerror.Wrap(ctlerror.Internal, err, "loading tables")
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		var t Table
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		req := AddTableRequest{
			Database:          t.Database,
			Name:              t.Name,
			IsPartitioned:     t.Kind == TablePartitioned,
			Schema:            trimReserved(t.Schema),
			DirectorKeyColumn: t.DirectorKeyColumn,
			ChunkIDColumn:     t.ChunkIDColumn,
			SubChunkIDColumn:  t.SubChunkIDColumn,
			IsDirector:        t.IsDirector,
			LatitudeColumn:    t.LatitudeColumn,
			LongitudeColumn:   t.LongitudeColumn,
		}
		if err := ms.addTableLocked(req); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (b *MySQLBackend) AddDatabaseFamily(ctx context.Context, f DatabaseFamily) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.addDatabaseFamilyLocked(f); err != nil {
		return err
	}
	return b.putJSON(ctx, "family", "name", f.Name, f)
}

func (b *MySQLBackend) DeleteDatabaseFamily(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteDatabaseFamilyLocked(name); err != nil {
		return err
	}
	return b.delRow(ctx, "family", "name", name)
}

func (b *MySQLBackend) AddDatabase(ctx context.Context, db Database) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.addDatabaseLocked(db); err != nil {
		return err
	}
	return b.putJSON(ctx, "config_database", "name", db.Name, db)
}

func (b *MySQLBackend) DeleteDatabase(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteDatabaseLocked(name); err != nil {
		return err
	}
	return b.delRow(ctx, "config_database", "name", name)
}

func (b *MySQLBackend) PublishDatabase(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.publishDatabaseLocked(name); err != nil {
		return err
	}
	return b.putJSON(ctx, "config_database", "name", name, b.databases[name])
}

func (b *MySQLBackend) AddTable(ctx context.Context, req AddTableRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.addTableLocked(req); err != nil {
		return err
	}
	t := b.tables[req.Database][req.Name]
	_, err := b.db.ExecContext(ctx,
		`REPLACE INTO config_table (database_name, name, doc) VALUES (?, ?, ?)`,
		req.Database, req.Name, mustJSON(t))
	return err
}

func (b *MySQLBackend) DeleteTable(ctx context.Context, database, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteTableLocked(database, name); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM config_table WHERE database_name = ? AND name = ?`, database, name)
	return err
}

func (b *MySQLBackend) AddWorker(ctx context.Context, w Worker) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.addWorkerLocked(w); err != nil {
		return err
	}
	return b.putJSON(ctx, "worker", "name", w.Name, w)
}

func (b *MySQLBackend) RemoveWorker(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.removeWorkerLocked(name); err != nil {
		return err
	}
	return b.delRow(ctx, "worker", "name", name)
}

func (b *MySQLBackend) DisableWorker(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.disableWorkerLocked(name); err != nil {
		return err
	}
	return b.putJSON(ctx, "worker", "name", name, b.workers[name])
}

func (b *MySQLBackend) SetWorkerEndpoint(ctx context.Context, name string, mutate func(*Worker)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.setWorkerEndpointLocked(name, mutate); err != nil {
		return err
	}
	return b.putJSON(ctx, "worker", "name", name, b.workers[name])
}

func (b *MySQLBackend) Close() error { return b.db.Close() }

func (b *MySQLBackend) putJSON(ctx context.Context, table, keyCol, key string, v interface{}) error {
	_, err := b.db.ExecContext(ctx,
		fmt.Sprintf(`REPLACE INTO %s (%s, doc) VALUES (?, ?)`, table, keyCol),
		key, mustJSON(v))
	return err
}

func (b *MySQLBackend) delRow(ctx context.Context, table, keyCol, key string) error {
	_, err := b.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, keyCol), key)
	return err
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
