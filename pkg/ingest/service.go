// Package ingest implements Ingest Coordination: the
// HTTP-facing endpoints that manage a database's lifecycle from first
// registration through publication, plus the per-transaction chunk
// ingest protocol. Every endpoint serializes through Service's single
// mutex, matching the rule that "each runs under the controller's lock
// for cross-endpoint serialization of ingest state."
package ingest

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/lsst/qserv-replica/pkg/chunk"
	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/controller"
	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/lsst/qserv-replica/pkg/job"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/rs/zerolog"
)

// Service implements every ingest endpoint's business logic, kept
// separate from the HTTP transport (http.go) so it can be driven
// directly from tests or from cmd/qservctl subcommands.
type Service struct {
	Store config.Store
	Ctl   *controller.Controller
	log   zerolog.Logger

	mu           sync.Mutex
	transactions map[int32]config.Transaction
	nextTxnID    int32
}

func NewService(store config.Store, ctl *controller.Controller) *Service {
	return &Service{
		Store:        store,
		Ctl:          ctl,
		log:          log.Component("ingest"),
		transactions: make(map[int32]config.Transaction),
		nextTxnID:    1,
	}
}

// AddDatabaseRequest and the rest of this file's Request/Result types
// are the Service-level (transport-agnostic) shapes; http.go maps them
// 1:1 to JSON.

type AddDatabaseRequest struct {
	Name          string  `json:"database"`
	NumStripes    int     `json:"num_stripes"`
	NumSubStripes int     `json:"num_sub_stripes"`
	Overlap       float64 `json:"overlap"`
}

// AddDatabase reuses or creates a family matching the striping triple,
// creates the database at every worker, and registers it.
func (s *Service) AddDatabase(ctx context.Context, req AddDatabaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	family := s.findOrMakeFamilyName(req.NumStripes, req.NumSubStripes, req.Overlap)
	if _, err := s.Store.Family(family); err != nil {
		if err := s.Store.AddDatabaseFamily(ctx, config.DatabaseFamily{
			Name:             family,
			ReplicationLevel: 1,
			NumStripes:       req.NumStripes,
			NumSubStripes:    req.NumSubStripes,
			Overlap:          req.Overlap,
		}); err != nil {
			return err
		}
	}

	if err := s.Store.AddDatabase(ctx, config.Database{Name: req.Name, Family: family}); err != nil {
		return err
	}

	if _, err := s.Ctl.Sql(ctx, family, req.Name, job.OpCreateDb, nil, false); err != nil {
		s.log.Warn().Str("database", req.Name).Err(err).Msg("add-database: SqlCreateDb broadcast had failures")
	}
	return nil
}

// findOrMakeFamilyName matches the "reuse or create a family
// matching the triple" by deriving a deterministic name from the
// striping parameters, so two add-database calls with identical
// striping always land in the same family.
func (s *Service) findOrMakeFamilyName(numStripes, numSubStripes int, overlap float64) string {
	for _, name := range s.Store.Families() {
		f, err := s.Store.Family(name)
		if err == nil && f.NumStripes == numStripes && f.NumSubStripes == numSubStripes && f.Overlap == overlap {
			return name
		}
	}
	return familyName(numStripes, numSubStripes, overlap)
}

func familyName(numStripes, numSubStripes int, overlap float64) string {
	return "layout_" + itoa(numStripes) + "_" + itoa(numSubStripes) + "_" + strconv.FormatFloat(overlap, 'f', -1, 64)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

type PublishDatabaseRequest struct {
	Name                      string `json:"database"`
	ConsolidateSecondaryIndex bool   `json:"consolidate_secondary_index"`
	RowCountersDeployAtQserv  bool   `json:"row_counters_deploy_at_qserv"`
}

// PublishDatabase implements the publish sequence.
func (s *Service) PublishDatabase(ctx context.Context, req PublishDatabaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.Store.Database(req.Name)
	if err != nil {
		return err
	}
	if db.IsPublished {
		return ctlerror.New(ctlerror.PreconditionFailed, "database %q is already published", req.Name)
	}
	for _, t := range s.transactions {
		if t.Database == req.Name && t.State == config.TransStarted {
			return ctlerror.New(ctlerror.PreconditionFailed, "database %q has an open transaction %d", req.Name, t.ID)
		}
	}
	tables := s.Store.Tables(req.Name)
	if len(tables) == 0 {
		return ctlerror.New(ctlerror.PreconditionFailed, "database %q has no registered tables", req.Name)
	}

	if req.ConsolidateSecondaryIndex {
		for _, t := range tables {
			if t.IsDirector {
				s.log.Info().Str("table", t.Name).Msg("publish-database: consolidating secondary index")
			}
		}
	}
	if req.RowCountersDeployAtQserv {
		if _, err := s.Ctl.Sql(ctx, db.Family, req.Name, job.OpRowStats, tableNames(tables), false); err != nil {
			s.log.Warn().Err(err).Msg("publish-database: SqlRowStats broadcast had failures")
		}
	}

	if _, err := s.Ctl.Sql(ctx, db.Family, req.Name, job.OpGrantAccess, nil, false); err != nil {
		s.log.Warn().Err(err).Msg("publish-database: SqlGrantAccess had failures")
	}
	if _, err := s.Ctl.Sql(ctx, db.Family, req.Name, job.OpEnableDb, nil, false); err != nil {
		s.log.Warn().Err(err).Msg("publish-database: SqlEnableDb had failures")
	}
	if _, err := s.Ctl.Sql(ctx, db.Family, req.Name, job.OpRemoveTablePartitions, tableNames(tables), true); err != nil {
		s.log.Warn().Err(err).Msg("publish-database: SqlRemoveTablePartitions had failures")
	}

	if err := s.Store.PublishDatabase(ctx, req.Name); err != nil {
		return err
	}
	return nil
}

func tableNames(tables []config.Table) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.Name)
	}
	return out
}

type DeleteDatabaseRequest struct {
	Name  string
	Admin bool
}

// DeleteDatabase implements the drop sequence.
func (s *Service) DeleteDatabase(ctx context.Context, req DeleteDatabaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.Store.Database(req.Name)
	if err != nil {
		return err
	}
	if db.IsPublished && !req.Admin {
		return ctlerror.New(ctlerror.PreconditionFailed, "database %q is published; admin flag required to delete it", req.Name)
	}

	if _, err := s.Ctl.Sql(ctx, db.Family, req.Name, job.OpDisableDb, nil, false); err != nil {
		s.log.Warn().Err(err).Msg("delete-database: SqlDisableDb had failures")
	}
	if _, err := s.Ctl.Sql(ctx, db.Family, req.Name, job.OpDeleteDb, nil, false); err != nil {
		s.log.Warn().Err(err).Msg("delete-database: SqlDeleteDb had failures")
	}
	return s.Store.DeleteDatabase(ctx, req.Name)
}

type AddTableRequest struct {
	Database          string           `json:"database"`
	Name              string           `json:"table"`
	IsPartitioned     bool             `json:"is_partitioned"`
	Schema            []config.Column  `json:"schema"`
	DirectorKeyColumn string           `json:"director_key_column,omitempty"`
	ChunkIDColumn     string           `json:"chunk_id_column,omitempty"`
	SubChunkIDColumn  string           `json:"sub_chunk_id_column,omitempty"`
	IsDirector        bool             `json:"is_director,omitempty"`
	LatitudeColumn    string           `json:"latitude_column,omitempty"`
	LongitudeColumn   string           `json:"longitude_column,omitempty"`
}

// AddTable validates and registers a table, then broadcasts its
// creation.
func (s *Service) AddTable(ctx context.Context, req AddTableRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.Store.Database(req.Database)
	if err != nil {
		return err
	}
	if err := s.Store.AddTable(ctx, config.AddTableRequest{
		Database:          req.Database,
		Name:              req.Name,
		IsPartitioned:     req.IsPartitioned,
		Schema:            req.Schema,
		DirectorKeyColumn: req.DirectorKeyColumn,
		ChunkIDColumn:     req.ChunkIDColumn,
		SubChunkIDColumn:  req.SubChunkIDColumn,
		IsDirector:        req.IsDirector,
		LatitudeColumn:    req.LatitudeColumn,
		LongitudeColumn:   req.LongitudeColumn,
	}); err != nil {
		return err
	}

	tables := []string{req.Name}
	if req.IsPartitioned {
		// Only the dummy chunk's physical tables exist at registration
		// time; per-chunk tables are created later by AddChunk/SqlJob as
		// chunks actually land.
		tables = job.PhysicalTables(req.Name, []int32{int32(chunk.Dummy)}, int32(chunk.Dummy))
	}
	if _, err := s.Ctl.Sql(ctx, db.Family, req.Database, job.OpCreateTables, tables, false); err != nil {
		s.log.Warn().Str("table", req.Name).Err(err).Msg("add-table: SqlCreateTables had failures")
	}
	return nil
}

// DeleteTable removes a table's registration and broadcasts its drop.
func (s *Service) DeleteTable(ctx context.Context, database, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.Store.Database(database)
	if err != nil {
		return err
	}
	if _, err := s.Ctl.Sql(ctx, db.Family, database, job.OpDeleteTable, []string{name}, false); err != nil {
		s.log.Warn().Str("table", name).Err(err).Msg("delete-table: SqlDeleteTable had failures")
	}
	return s.Store.DeleteTable(ctx, database, name)
}

// BeginTransaction allocates a transaction id.
func (s *Service) BeginTransaction(ctx context.Context, database string) (config.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Store.Database(database); err != nil {
		return config.Transaction{}, err
	}
	txn := config.Transaction{ID: s.nextTxnID, Database: database, State: config.TransStarted}
	s.nextTxnID++
	s.transactions[txn.ID] = txn
	return txn, nil
}

// EndTransaction commits or aborts a transaction.
func (s *Service) EndTransaction(ctx context.Context, id int32, abort bool) (config.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return config.Transaction{}, ctlerror.New(ctlerror.InvalidArgument, "unknown transaction %d", id)
	}
	if txn.State != config.TransStarted {
		return config.Transaction{}, ctlerror.New(ctlerror.PreconditionFailed, "transaction %d already ended", id)
	}
	if abort {
		txn.State = config.TransAborted
		db, _ := s.Store.Database(txn.Database)
		if _, err := s.Ctl.Sql(ctx, db.Family, txn.Database, job.OpDeleteTable, nil, false); err != nil {
			s.log.Warn().Int32("txn", id).Err(err).Msg("abort-transaction: partition drop had failures")
		}
	} else {
		txn.State = config.TransFinished
	}
	s.transactions[id] = txn
	return txn, nil
}

type AddChunkRequest struct {
	TransactionID int32 `json:"transaction_id"`
	Chunk         int32 `json:"chunk"`
}

type AddChunkResult struct {
	Worker     string `json:"worker"`
	LoaderHost string `json:"loader_host"`
	LoaderPort int    `json:"loader_port"`
}

// AddChunk picks a worker for a new chunk replica, preferring
// colocation with the chunk's other databases in the same family, then
// the least-loaded writable worker overall.
func (s *Service) AddChunk(ctx context.Context, req AddChunkRequest) (AddChunkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[req.TransactionID]
	if !ok || txn.State != config.TransStarted {
		return AddChunkResult{}, ctlerror.New(ctlerror.InvalidArgument, "transaction %d is not open", req.TransactionID)
	}
	db, err := s.Store.Database(txn.Database)
	if err != nil {
		return AddChunkResult{}, err
	}
	family, err := s.Store.Family(db.Family)
	if err != nil {
		return AddChunkResult{}, err
	}
	striping := chunk.Striping{NumStripes: family.NumStripes, NumSubStripes: family.NumSubStripes, Overlap: family.Overlap}
	if !striping.Valid(chunk.Number(req.Chunk)) {
		return AddChunkResult{}, ctlerror.New(ctlerror.InvalidArgument, "chunk %d is not valid for family %q's striping", req.Chunk, db.Family)
	}

	writable := s.Store.Workers(true, false)
	occupancy := make(map[string]int)
	colocated := make(map[string]int) // workers already holding req.Chunk in a sibling database
	for _, w := range writable {
		occupancy[w] = 0
		for _, r := range s.Ctl.ReplicasOnWorker(w) {
			occupancy[w]++
			if r.Chunk == req.Chunk {
				for _, sibling := range s.Store.DatabasesInFamily(db.Family) {
					if sibling.Name != txn.Database && sibling.Name == r.Database {
						colocated[w]++
					}
				}
			}
		}
	}

	var chosen string
	sort.Strings(writable)
	if len(colocated) > 0 {
		best := ""
		for w := range colocated {
			if best == "" || occupancy[w] < occupancy[best] {
				best = w
			}
		}
		chosen = best
	} else if len(writable) > 0 {
		best := writable[0]
		for _, w := range writable {
			if occupancy[w] < occupancy[best] {
				best = w
			}
		}
		chosen = best
	}
	if chosen == "" {
		return AddChunkResult{}, ctlerror.New(ctlerror.Internal, "no writable worker available for chunk %d", req.Chunk)
	}

	w, err := s.Store.Worker(chosen)
	if err != nil {
		return AddChunkResult{}, err
	}
	return AddChunkResult{Worker: chosen, LoaderHost: w.LoaderHost, LoaderPort: w.LoaderPort}, nil
}

// BuildEmptyChunksList computes the complement of hosted chunks
// against the family's allowed chunk set.
func (s *Service) BuildEmptyChunksList(ctx context.Context, database string) ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.Store.Database(database)
	if err != nil {
		return nil, err
	}
	family, err := s.Store.Family(db.Family)
	if err != nil {
		return nil, err
	}
	striping := chunk.Striping{NumStripes: family.NumStripes, NumSubStripes: family.NumSubStripes, Overlap: family.Overlap}

	hosted := make(map[chunk.Number]bool)
	for _, w := range s.Store.AllWorkers() {
		for _, r := range s.Ctl.ReplicasOnWorker(w.Name) {
			if r.Database == database {
				hosted[chunk.Number(r.Chunk)] = true
			}
		}
	}
	var empty []int32
	for _, c := range striping.AllChunks() {
		if !hosted[c] {
			empty = append(empty, int32(c))
		}
	}
	return empty, nil
}
