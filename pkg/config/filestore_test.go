package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestTOML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qserv-replica.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadFileBackendParsesCommonAndWorkers(t *testing.T) {
	path := writeTestTOML(t, `
[common]
replication_interval_sec = 120

[[worker]]
name = "worker-1"
is_enabled = true
`)
	b, err := LoadFileBackend(path)
	require.NoError(t, err)

	assert.Equal(t, 120, b.ReplicationIntervalSec())
	assert.Equal(t, 1024*1024, b.RequestBufSizeBytes(), "zero-valued TOML fields fall back to defaults")

	w, err := b.Worker("worker-1")
	require.NoError(t, err)
	assert.True(t, w.IsEnabled)
}

func TestLoadFileBackendRejectsMalformedTOML(t *testing.T) {
	path := writeTestTOML(t, "this is not [ valid toml")
	_, err := LoadFileBackend(path)
	assert.Error(t, err)
}

func TestLoadFileBackendAppliesPublishedFlag(t *testing.T) {
	path := writeTestTOML(t, `
[[family]]
name = "dx"
num_stripes = 10

[[database]]
name = "db1"
family = "dx"
is_published = true
`)
	b, err := LoadFileBackend(path)
	require.NoError(t, err)

	db, err := b.Database("db1")
	require.NoError(t, err)
	assert.True(t, db.IsPublished)
}

func TestFileBackendAddWorkerPersistsToDisk(t *testing.T) {
	path := writeTestTOML(t, "")
	b, err := LoadFileBackend(path)
	require.NoError(t, err)

	require.NoError(t, b.AddWorker(context.Background(), Worker{Name: "worker-1", IsEnabled: true}))

	var doc fileDoc
	_, err = toml.DecodeFile(path, &doc)
	require.NoError(t, err)
	require.Len(t, doc.Workers, 1)
	assert.Equal(t, "worker-1", doc.Workers[0].Name)
}

func TestFileBackendAddTablePersistsSchemaWithoutReservedColumn(t *testing.T) {
	path := writeTestTOML(t, `
[[family]]
name = "dx"

[[database]]
name = "db1"
family = "dx"
`)
	b, err := LoadFileBackend(path)
	require.NoError(t, err)

	require.NoError(t, b.AddTable(context.Background(), AddTableRequest{
		Database: "db1", Name: "Object", Schema: []Column{{Name: "id", Type: "BIGINT"}},
	}))

	var doc fileDoc
	_, err = toml.DecodeFile(path, &doc)
	require.NoError(t, err)
	require.Len(t, doc.Tables, 1)
	for _, c := range doc.Tables[0].Schema {
		assert.NotEqual(t, ReservedTransColumn, c.Name, "persisted schema must not re-serialize the reserved column")
	}
}

func TestFileBackendMutationFailureLeavesFileUnwritten(t *testing.T) {
	path := writeTestTOML(t, "")
	b, err := LoadFileBackend(path)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = b.AddDatabase(context.Background(), Database{Name: "db1", Family: "nope"})
	assert.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a rejected mutation must not trigger a persist()")
}

func TestFileBackendCloseIsANoop(t *testing.T) {
	path := writeTestTOML(t, "")
	b, err := LoadFileBackend(path)
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
