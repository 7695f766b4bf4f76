// Package migrations embeds the SQL migrations applied by goose.
package migrations

import "embed"

// FS contains one directory per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
