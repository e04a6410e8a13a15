package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMapReturnsFreshMapBackend(t *testing.T) {
	s, err := Open("map:")
	require.NoError(t, err)
	_, ok := s.(*MapBackend)
	assert.True(t, ok)
}

func TestOpenFileDelegatesToLoadFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qserv-replica.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	s, err := Open("file:" + path)
	require.NoError(t, err)
	_, ok := s.(*FileBackend)
	assert.True(t, ok)
}

func TestOpenRejectsUnrecognizedPrefix(t *testing.T) {
	_, err := Open("redis://localhost")
	require.Error(t, err)
	assert.Equal(t, ctlerror.InvalidArgument, ctlerror.KindOf(err))
}

func TestOpenFilePropagatesParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [ valid"), 0644))

	_, err := Open("file:" + path)
	assert.Error(t, err)
}
