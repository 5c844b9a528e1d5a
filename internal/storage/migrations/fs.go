package migrations

import "embed"

// FS embeds the migration SQL scripts.
//
//go:embed scripts/*.sql
var FS embed.FS
