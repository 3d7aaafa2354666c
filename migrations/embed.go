// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds the up and down migrations in golang-migrate's naming scheme.
//
//go:embed *.sql
var FS embed.FS
