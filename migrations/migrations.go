// Package migrations embeds the per-practice schema migrations applied by
// db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
