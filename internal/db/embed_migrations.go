package db

import "embed"

// MigrationFS embeds the documents table migrations applied by internal/db/migrate and cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
