package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/lsst/qserv-replica/pkg/ctlerror"
)

// Params holds the scalar configuration values named in the key
// namespace.
type Params struct {
	RequestBufSizeBytes        int
	RequestRetryIntervalSec    int
	ControllerNumThreads       int
	ControllerRequestTimeoutSec int
	ControllerJobTimeoutSec    int
	ControllerJobHeartbeatSec  int
	WorkerNumProcessingThreads int
	FsNumProcessingThreads     int
	FsBufSizeBytes             int
	ReplicationIntervalSec     int
	WorkerResponseTimeoutSec   int
	WorkerEvictTimeoutSec      int
	HealthProbeIntervalSec     int
}

// DefaultParams returns the defaults used when a backend omits a key.
func DefaultParams() Params {
	return Params{
		RequestBufSizeBytes:         1024 * 1024,
		RequestRetryIntervalSec:     5,
		ControllerNumThreads:        4,
		ControllerRequestTimeoutSec: 300,
		ControllerJobTimeoutSec:     900,
		ControllerJobHeartbeatSec:   10,
		WorkerNumProcessingThreads:  4,
		FsNumProcessingThreads:      4,
		FsBufSizeBytes:              4 * 1024 * 1024,
		ReplicationIntervalSec:      60,
		WorkerResponseTimeoutSec:    30,
		WorkerEvictTimeoutSec:       60,
		HealthProbeIntervalSec:      30,
	}
}

// memStore is the shared in-memory representation backing every Store
// implementation. Durable backends wrap it and additionally persist
// mutations; the "map:" backend exposes it directly.
type memStore struct {
	mu sync.RWMutex

	params Params

	workers  map[string]Worker
	families map[string]DatabaseFamily
	databases map[string]Database
	tables    map[string]map[string]Table // database -> table name -> Table
}

func newMemStore(p Params) *memStore {
	return &memStore{
		params:    p,
		workers:   make(map[string]Worker),
		families:  make(map[string]DatabaseFamily),
		databases: make(map[string]Database),
		tables:    make(map[string]map[string]Table),
	}
}

// --- scalar accessors ---

func (s *memStore) RequestBufSizeBytes() int         { return s.params.RequestBufSizeBytes }
func (s *memStore) RequestRetryIntervalSec() int     { return s.params.RequestRetryIntervalSec }
func (s *memStore) ControllerNumThreads() int        { return s.params.ControllerNumThreads }
func (s *memStore) ControllerRequestTimeoutSec() int { return s.params.ControllerRequestTimeoutSec }
func (s *memStore) ControllerJobTimeoutSec() int     { return s.params.ControllerJobTimeoutSec }
func (s *memStore) ControllerJobHeartbeatSec() int   { return s.params.ControllerJobHeartbeatSec }
func (s *memStore) WorkerNumProcessingThreads() int  { return s.params.WorkerNumProcessingThreads }
func (s *memStore) FsNumProcessingThreads() int      { return s.params.FsNumProcessingThreads }
func (s *memStore) FsBufSizeBytes() int              { return s.params.FsBufSizeBytes }
func (s *memStore) ReplicationIntervalSec() int      { return s.params.ReplicationIntervalSec }
func (s *memStore) WorkerResponseTimeoutSec() int    { return s.params.WorkerResponseTimeoutSec }
func (s *memStore) WorkerEvictTimeoutSec() int       { return s.params.WorkerEvictTimeoutSec }
func (s *memStore) HealthProbeIntervalSec() int      { return s.params.HealthProbeIntervalSec }

// --- workers ---

// Workers returns names filtered per the following semantics: when
// isEnabled is true, workers with enabled==true AND readOnly==isReadOnly;
// when isEnabled is false, every disabled worker regardless of isReadOnly.
func (s *memStore) Workers(isEnabled bool, isReadOnly bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for name, w := range s.workers {
		if isEnabled {
			if w.IsEnabled && w.IsReadOnly == isReadOnly {
				out = append(out, name)
			}
		} else {
			if !w.IsEnabled {
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (s *memStore) Worker(name string) (Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[name]
	if !ok {
		return Worker{}, ctlerror.New(ctlerror.UnknownWorker, "worker %q is not configured", name)
	}
	return w, nil
}

func (s *memStore) AllWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *memStore) WorkerDataDir(name string) (string, error) {
	s.mu.RLock()
	w, ok := s.workers[name]
	s.mu.RUnlock()
	if !ok {
		return "", ctlerror.New(ctlerror.UnknownWorker, "worker %q is not configured", name)
	}
	return ExpandWorkerPath(w.DataDir, name)
}

// ExpandWorkerPath replaces the literal token "{worker}" with workerName.
// A brace without a matching closer is rejected; a brace pair
// enclosing anything other than "worker" is returned unchanged.
func ExpandWorkerPath(path, workerName string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(path) {
		if path[i] == '{' {
			j := strings.IndexByte(path[i:], '}')
			if j < 0 {
				return "", ctlerror.New(ctlerror.InvalidArgument, "unmatched '{' in path %q", path)
			}
			token := path[i+1 : i+j]
			if token == "worker" {
				b.WriteString(workerName)
			} else {
				b.WriteString(path[i : i+j+1])
			}
			i += j + 1
			continue
		}
		if path[i] == '}' {
			return "", ctlerror.New(ctlerror.InvalidArgument, "unmatched '}' in path %q", path)
		}
		b.WriteByte(path[i])
		i++
	}
	return b.String(), nil
}

// --- families ---

func (s *memStore) Families() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.families))
	for name := range s.families {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *memStore) Family(name string) (DatabaseFamily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.families[name]
	if !ok {
		return DatabaseFamily{}, ctlerror.New(ctlerror.UnknownFamily, "family %q is not configured", name)
	}
	return f, nil
}

func (s *memStore) ReplicationLevel(family string) (uint, error) {
	f, err := s.Family(family)
	if err != nil {
		return 0, err
	}
	return f.ReplicationLevel, nil
}

// --- databases ---

func (s *memStore) Databases(family string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, db := range s.databases {
		if db.Family == family {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (s *memStore) Database(name string) (Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[name]
	if !ok {
		return Database{}, ctlerror.New(ctlerror.UnknownDatabase, "database %q is not configured", name)
	}
	return db, nil
}

func (s *memStore) DatabasesInFamily(family string) []Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Database
	for _, db := range s.databases {
		if db.Family == family {
			out = append(out, db)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --- tables ---

func (s *memStore) Tables(database string) []Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Table
	for _, t := range s.tables[database] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *memStore) Table(database, name string) (Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[database][name]
	if !ok {
		return Table{}, ctlerror.New(ctlerror.UnknownTable, "table %s.%s is not configured", database, name)
	}
	return t, nil
}

func (s *memStore) DirectorTable(database string) (Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tables[database] {
		if t.IsDirector {
			return t, nil
		}
	}
	return Table{}, ctlerror.New(ctlerror.UnknownTable, "database %q has no director table", database)
}

// --- mutators (unlocked helpers called by backends holding the store mutex) ---

func (s *memStore) addDatabaseFamilyLocked(f DatabaseFamily) error {
	if _, exists := s.families[f.Name]; exists {
		return ctlerror.New(ctlerror.AlreadyExists, "family %q already exists", f.Name)
	}
	s.families[f.Name] = f
	return nil
}

func (s *memStore) deleteDatabaseFamilyLocked(name string) error {
	if _, exists := s.families[name]; !exists {
		return ctlerror.New(ctlerror.UnknownFamily, "family %q is not configured", name)
	}
	for _, db := range s.databases {
		if db.Family == name {
			return ctlerror.New(ctlerror.PreconditionFailed, "family %q still has database %q", name, db.Name)
		}
	}
	delete(s.families, name)
	return nil
}

func (s *memStore) addDatabaseLocked(db Database) error {
	if db.Name == "" {
		return ctlerror.New(ctlerror.InvalidArgument, "database name must not be empty")
	}
	if _, exists := s.databases[db.Name]; exists {
		return ctlerror.New(ctlerror.AlreadyExists, "database %q already exists", db.Name)
	}
	if _, exists := s.families[db.Family]; !exists {
		return ctlerror.New(ctlerror.UnknownFamily, "family %q is not configured", db.Family)
	}
	s.databases[db.Name] = db
	s.tables[db.Name] = make(map[string]Table)
	return nil
}

func (s *memStore) deleteDatabaseLocked(name string) error {
	if _, exists := s.databases[name]; !exists {
		return ctlerror.New(ctlerror.UnknownDatabase, "database %q is not configured", name)
	}
	delete(s.databases, name)
	delete(s.tables, name)
	return nil
}

func (s *memStore) publishDatabaseLocked(name string) error {
	db, exists := s.databases[name]
	if !exists {
		return ctlerror.New(ctlerror.UnknownDatabase, "database %q is not configured", name)
	}
	if db.IsPublished {
		return ctlerror.New(ctlerror.PreconditionFailed, "database %q is already published", name)
	}
	db.IsPublished = true
	s.databases[name] = db
	return nil
}

// addTableLocked validates and registers a table per the rules below.
func (s *memStore) addTableLocked(req AddTableRequest) error {
	if req.Database == "" || req.Name == "" {
		return ctlerror.New(ctlerror.InvalidArgument, "database and table names must not be empty")
	}
	if _, exists := s.databases[req.Database]; !exists {
		return ctlerror.New(ctlerror.UnknownDatabase, "database %q is not configured", req.Database)
	}
	tbls := s.tables[req.Database]
	if _, exists := tbls[req.Name]; exists {
		return ctlerror.New(ctlerror.InvalidArgument, "table %q already exists in database %q", req.Name, req.Database)
	}

	schema := append([]Column{{Name: ReservedTransColumn, Type: "INT NOT NULL"}}, req.Schema...)
	for _, c := range req.Schema {
		if c.Name == ReservedTransColumn {
			return ctlerror.New(ctlerror.InvalidArgument, "column name %q is reserved", ReservedTransColumn)
		}
	}

	t := Table{
		Database: req.Database,
		Name:     req.Name,
		Schema:   schema,
	}

	if req.IsPartitioned {
		t.Kind = TablePartitioned
		if req.DirectorKeyColumn == "" || req.ChunkIDColumn == "" || req.SubChunkIDColumn == "" {
			return ctlerror.New(ctlerror.InvalidArgument, "partitioned table %q requires director key, chunk id, and sub-chunk id columns", req.Name)
		}
		if !hasColumn(req.Schema, req.DirectorKeyColumn) {
			return ctlerror.New(ctlerror.InvalidArgument, "director key column %q not found in schema", req.DirectorKeyColumn)
		}
		if !hasColumn(req.Schema, req.ChunkIDColumn) {
			return ctlerror.New(ctlerror.InvalidArgument, "chunk id column %q not found in schema", req.ChunkIDColumn)
		}
		if !hasColumn(req.Schema, req.SubChunkIDColumn) {
			return ctlerror.New(ctlerror.InvalidArgument, "sub-chunk id column %q not found in schema", req.SubChunkIDColumn)
		}
		t.DirectorKeyColumn = req.DirectorKeyColumn
		t.ChunkIDColumn = req.ChunkIDColumn
		t.SubChunkIDColumn = req.SubChunkIDColumn

		if req.IsDirector {
			for _, existing := range tbls {
				if existing.IsDirector {
					return ctlerror.New(ctlerror.InvalidArgument, "database %q already has a director table %q", req.Database, existing.Name)
				}
			}
			if req.LatitudeColumn == "" || req.LongitudeColumn == "" {
				return ctlerror.New(ctlerror.InvalidArgument, "director table %q requires latitude and longitude columns", req.Name)
			}
			t.IsDirector = true
			t.LatitudeColumn = req.LatitudeColumn
			t.LongitudeColumn = req.LongitudeColumn
		}
	} else {
		t.Kind = TableRegular
	}

	tbls[req.Name] = t
	return nil
}

func hasColumn(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (s *memStore) deleteTableLocked(database, name string) error {
	tbls, exists := s.tables[database]
	if !exists {
		return ctlerror.New(ctlerror.UnknownDatabase, "database %q is not configured", database)
	}
	if _, exists := tbls[name]; !exists {
		return ctlerror.New(ctlerror.UnknownTable, "table %s.%s is not configured", database, name)
	}
	delete(tbls, name)
	return nil
}

func (s *memStore) addWorkerLocked(w Worker) error {
	if w.Name == "" {
		return ctlerror.New(ctlerror.InvalidArgument, "worker name must not be empty")
	}
	if _, exists := s.workers[w.Name]; exists {
		return ctlerror.New(ctlerror.AlreadyExists, "worker %q already exists", w.Name)
	}
	if _, err := ExpandWorkerPath(w.DataDir, w.Name); err != nil {
		return err
	}
	s.workers[w.Name] = w
	return nil
}

func (s *memStore) removeWorkerLocked(name string) error {
	if _, exists := s.workers[name]; !exists {
		return ctlerror.New(ctlerror.UnknownWorker, "worker %q is not configured", name)
	}
	delete(s.workers, name)
	return nil
}

func (s *memStore) disableWorkerLocked(name string) error {
	w, exists := s.workers[name]
	if !exists {
		return ctlerror.New(ctlerror.UnknownWorker, "worker %q is not configured", name)
	}
	w.IsEnabled = false
	s.workers[name] = w
	return nil
}

func (s *memStore) setWorkerEndpointLocked(name string, mutate func(*Worker)) error {
	w, exists := s.workers[name]
	if !exists {
		return ctlerror.New(ctlerror.UnknownWorker, "worker %q is not configured", name)
	}
	mutate(&w)
	w.Name = name
	s.workers[name] = w
	return nil
}
