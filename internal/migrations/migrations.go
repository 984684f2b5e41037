// Package migrations embeds the PostgreSQL schema migrations applied by
// pkg/database at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
