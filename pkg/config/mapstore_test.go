package config

import (
	"context"
	"testing"

	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MapBackend {
	return NewMapBackend(DefaultParams())
}

func TestDefaultParamsExposedViaScalarAccessors(t *testing.T) {
	s := newTestStore()
	assert.Equal(t, 1024*1024, s.RequestBufSizeBytes())
	assert.Equal(t, 60, s.ReplicationIntervalSec())
	assert.Equal(t, 30, s.HealthProbeIntervalSec())
}

func TestAddAndGetWorker(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-1", IsEnabled: true}))

	w, err := s.Worker("worker-1")
	require.NoError(t, err)
	assert.True(t, w.IsEnabled)
}

func TestAddWorkerRejectsDuplicateName(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-1"}))

	err := s.AddWorker(ctx, Worker{Name: "worker-1"})
	require.Error(t, err)
	assert.Equal(t, ctlerror.AlreadyExists, ctlerror.KindOf(err))
}

func TestAddWorkerRejectsEmptyName(t *testing.T) {
	s := newTestStore()
	err := s.AddWorker(context.Background(), Worker{Name: ""})
	require.Error(t, err)
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestWorkerUnknownReturnsUnknownWorker(t *testing.T) {
	s := newTestStore()
	_, err := s.Worker("nope")
	assert.Equal(t, ctlerror.UnknownWorker, ctlerror.KindOf(err))
}

func TestWorkersFiltersByEnabledAndReadOnly(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "w-enabled-rw", IsEnabled: true, IsReadOnly: false}))
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "w-enabled-ro", IsEnabled: true, IsReadOnly: true}))
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "w-disabled-rw", IsEnabled: false, IsReadOnly: false}))
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "w-disabled-ro", IsEnabled: false, IsReadOnly: true}))

	assert.Equal(t, []string{"w-enabled-rw"}, s.Workers(true, false))
	assert.Equal(t, []string{"w-enabled-ro"}, s.Workers(true, true))
	assert.ElementsMatch(t, []string{"w-disabled-rw", "w-disabled-ro"}, s.Workers(false, false),
		"disabled lookup ignores read-only and returns every disabled worker")
}

func TestAllWorkersSortedByName(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-b"}))
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-a"}))

	all := s.AllWorkers()
	require.Len(t, all, 2)
	assert.Equal(t, "worker-a", all[0].Name)
	assert.Equal(t, "worker-b", all[1].Name)
}

func TestRemoveWorker(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-1"}))
	require.NoError(t, s.RemoveWorker(ctx, "worker-1"))

	_, err := s.Worker("worker-1")
	assert.Equal(t, ctlerror.UnknownWorker, ctlerror.KindOf(err))
}

func TestRemoveWorkerUnknownFails(t *testing.T) {
	s := newTestStore()
	err := s.RemoveWorker(context.Background(), "nope")
	assert.Equal(t, ctlerror.UnknownWorker, ctlerror.KindOf(err))
}

func TestDisableWorker(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-1", IsEnabled: true}))
	require.NoError(t, s.DisableWorker(ctx, "worker-1"))

	w, err := s.Worker("worker-1")
	require.NoError(t, err)
	assert.False(t, w.IsEnabled)
}

func TestSetWorkerEndpointMutatesInPlacePreservingName(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-1"}))

	require.NoError(t, s.SetWorkerEndpoint(ctx, "worker-1", func(w *Worker) {
		w.SvcHost = "host-1"
		w.SvcPort = 9000
		w.Name = "ignored-attempt-to-rename"
	}))

	w, err := s.Worker("worker-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", w.Name, "setWorkerEndpointLocked must pin Name back after mutate")
	assert.Equal(t, "host-1", w.SvcHost)
	assert.Equal(t, 9000, w.SvcPort)
}

func TestExpandWorkerPathSubstitutesToken(t *testing.T) {
	got, err := ExpandWorkerPath("/data/{worker}/qserv", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "/data/worker-1/qserv", got)
}

func TestExpandWorkerPathLeavesOtherTokensAlone(t *testing.T) {
	got, err := ExpandWorkerPath("/data/{other}/qserv", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "/data/{other}/qserv", got)
}

func TestExpandWorkerPathRejectsUnmatchedBraces(t *testing.T) {
	_, err := ExpandWorkerPath("/data/{worker", "worker-1")
	assert.Error(t, err)

	_, err = ExpandWorkerPath("/data/worker}", "worker-1")
	assert.Error(t, err)
}

func TestWorkerDataDirExpandsToken(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddWorker(ctx, Worker{Name: "worker-1", DataDir: "/data/{worker}"}))

	dir, err := s.WorkerDataDir("worker-1")
	require.NoError(t, err)
	assert.Equal(t, "/data/worker-1", dir)
}

func TestAddWorkerRejectsUnexpandableDataDir(t *testing.T) {
	s := newTestStore()
	err := s.AddWorker(context.Background(), Worker{Name: "worker-1", DataDir: "/data/{worker"})
	assert.Error(t, err)
}

func TestFamilyLifecycle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx", NumStripes: 10, NumSubStripes: 2, Overlap: 0.01, ReplicationLevel: 2}))

	f, err := s.Family("dx")
	require.NoError(t, err)
	assert.Equal(t, 10, f.NumStripes)

	level, err := s.ReplicationLevel("dx")
	require.NoError(t, err)
	assert.Equal(t, uint(2), level)

	assert.Equal(t, []string{"dx"}, s.Families())
}

func TestAddDatabaseFamilyRejectsDuplicate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	err := s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"})
	assert.Equal(t, ctlerror.AlreadyExists, ctlerror.KindOf(err))
}

func TestDeleteDatabaseFamilyRejectsWhenDatabasesExist(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	err := s.DeleteDatabaseFamily(ctx, "dx")
	assert.Equal(t, ctlerror.PreconditionFailed, ctlerror.KindOf(err))
}

func TestDeleteDatabaseFamilySucceedsWhenEmpty(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.DeleteDatabaseFamily(ctx, "dx"))

	_, err := s.Family("dx")
	assert.Equal(t, ctlerror.UnknownFamily, ctlerror.KindOf(err))
}

func TestAddDatabaseRejectsUnknownFamily(t *testing.T) {
	s := newTestStore()
	err := s.AddDatabase(context.Background(), Database{Name: "db1", Family: "nope"})
	assert.Equal(t, ctlerror.UnknownFamily, ctlerror.KindOf(err))
}

func TestAddDatabaseRejectsDuplicateName(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	err := s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"})
	assert.Equal(t, ctlerror.AlreadyExists, ctlerror.KindOf(err))
}

func TestDatabasesAndDatabasesInFamily(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db2", Family: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	assert.Equal(t, []string{"db1", "db2"}, s.Databases("dx"))

	all := s.DatabasesInFamily("dx")
	require.Len(t, all, 2)
	assert.Equal(t, "db1", all[0].Name)
}

func TestPublishDatabaseTwiceFails(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))
	require.NoError(t, s.PublishDatabase(ctx, "db1"))

	err := s.PublishDatabase(ctx, "db1")
	assert.Equal(t, ctlerror.PreconditionFailed, ctlerror.KindOf(err))
}

func TestDeleteDatabaseAlsoDropsItsTables(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))
	require.NoError(t, s.AddTable(ctx, AddTableRequest{Database: "db1", Name: "Object", Schema: []Column{{Name: "id"}}}))

	require.NoError(t, s.DeleteDatabase(ctx, "db1"))
	assert.Empty(t, s.Tables("db1"))
}

func TestAddTableAlwaysPrependsReservedTransColumn(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))
	require.NoError(t, s.AddTable(ctx, AddTableRequest{Database: "db1", Name: "Object", Schema: []Column{{Name: "id"}}}))

	tbl, err := s.Table("db1", "Object")
	require.NoError(t, err)
	require.NotEmpty(t, tbl.Schema)
	assert.Equal(t, ReservedTransColumn, tbl.Schema[0].Name)
	assert.Equal(t, TableRegular, tbl.Kind)
}

func TestAddTableRejectsReservedColumnName(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	err := s.AddTable(ctx, AddTableRequest{Database: "db1", Name: "Object", Schema: []Column{{Name: ReservedTransColumn}}})
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestAddTableRejectsMissingPartitionColumns(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	err := s.AddTable(ctx, AddTableRequest{Database: "db1", Name: "Object", IsPartitioned: true, Schema: []Column{{Name: "id"}}})
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestAddTableRejectsDirectorColumnNotInSchema(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	err := s.AddTable(ctx, AddTableRequest{
		Database: "db1", Name: "Object", IsPartitioned: true,
		Schema:            []Column{{Name: "chunkId"}, {Name: "subChunkId"}},
		DirectorKeyColumn: "objectId", ChunkIDColumn: "chunkId", SubChunkIDColumn: "subChunkId",
	})
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestAddTableRejectsSecondDirectorTable(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	schema := []Column{{Name: "objectId"}, {Name: "chunkId"}, {Name: "subChunkId"}, {Name: "ra"}, {Name: "decl"}}
	req := AddTableRequest{
		Database: "db1", Name: "Object", IsPartitioned: true, IsDirector: true,
		Schema: schema, DirectorKeyColumn: "objectId", ChunkIDColumn: "chunkId", SubChunkIDColumn: "subChunkId",
		LatitudeColumn: "decl", LongitudeColumn: "ra",
	}
	require.NoError(t, s.AddTable(ctx, req))

	req.Name = "Source"
	err := s.AddTable(ctx, req)
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestAddTableDirectorRequiresLatLon(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	err := s.AddTable(ctx, AddTableRequest{
		Database: "db1", Name: "Object", IsPartitioned: true, IsDirector: true,
		Schema:            []Column{{Name: "objectId"}, {Name: "chunkId"}, {Name: "subChunkId"}},
		DirectorKeyColumn: "objectId", ChunkIDColumn: "chunkId", SubChunkIDColumn: "subChunkId",
	})
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestDirectorTableLookup(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))

	_, err := s.DirectorTable("db1")
	assert.Equal(t, ctlerror.UnknownTable, ctlerror.KindOf(err))

	req := AddTableRequest{
		Database: "db1", Name: "Object", IsPartitioned: true, IsDirector: true,
		Schema:            []Column{{Name: "objectId"}, {Name: "chunkId"}, {Name: "subChunkId"}, {Name: "ra"}, {Name: "decl"}},
		DirectorKeyColumn: "objectId", ChunkIDColumn: "chunkId", SubChunkIDColumn: "subChunkId",
		LatitudeColumn: "decl", LongitudeColumn: "ra",
	}
	require.NoError(t, s.AddTable(ctx, req))

	tbl, err := s.DirectorTable("db1")
	require.NoError(t, err)
	assert.Equal(t, "Object", tbl.Name)
}

func TestDeleteTable(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.AddDatabaseFamily(ctx, DatabaseFamily{Name: "dx"}))
	require.NoError(t, s.AddDatabase(ctx, Database{Name: "db1", Family: "dx"}))
	require.NoError(t, s.AddTable(ctx, AddTableRequest{Database: "db1", Name: "Object", Schema: []Column{{Name: "id"}}}))

	require.NoError(t, s.DeleteTable(ctx, "db1", "Object"))
	_, err := s.Table("db1", "Object")
	assert.Equal(t, ctlerror.UnknownTable, ctlerror.KindOf(err))
}

func TestDeleteTableUnknownDatabaseFails(t *testing.T) {
	s := newTestStore()
	err := s.DeleteTable(context.Background(), "nope", "Object")
	assert.Equal(t, ctlerror.UnknownDatabase, ctlerror.KindOf(err))
}

func TestCloseIsANoop(t *testing.T) {
	s := newTestStore()
	assert.NoError(t, s.Close())
}
