// Package migrations embeds the schema migrations for each supported driver.
package migrations

import "embed"

// Sqlite holds migrations for mattn/go-sqlite3 (development, tests).
//
//go:embed sqlite/*.sql
var Sqlite embed.FS

// Postgres holds migrations for lib/pq (production).
//
//go:embed postgres/*.sql
var Postgres embed.FS
