package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations, one directory per
// dialect (postgres, sqlite). Used by the migrate runner (cmd/migrate and cmd/server).
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS
