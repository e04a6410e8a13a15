package config

import (
	"strings"

	"github.com/lsst/qserv-replica/pkg/ctlerror"
)

// Open resolves a configUrl per the scheme grammar below and returns the
// matching Store implementation. Recognized prefixes:
//
//	file:<path>    a TOML configuration file (FileBackend)
//	mysql://<dsn>  a relational schema in MySQL (MySQLBackend)
//	map:           an empty in-memory store seeded with default
//	               parameters, for tests and ephemeral controllers
//
// Any other prefix is rejected at startup rather than silently
// defaulting.
func Open(configURL string) (Store, error) {
	switch {
	case strings.HasPrefix(configURL, "file:"):
		return LoadFileBackend(strings.TrimPrefix(configURL, "file:"))
	case strings.HasPrefix(configURL, "mysql://"):
		return LoadMySQLBackend(strings.TrimPrefix(configURL, "mysql://"))
	case configURL == "map:" || strings.HasPrefix(configURL, "map:"):
		return NewMapBackend(DefaultParams()), nil
	default:
		return nil, ctlerror.New(ctlerror.InvalidArgument, "unrecognized configuration URL %q: expected file:, mysql://, or map: prefix", configURL)
	}
}
