// Package migrations embeds the PostgreSQL schema migrations for the call
// store. SQLite uses GORM auto-migration instead; these files exist so
// production PostgreSQL schemas evolve through explicit, reviewable steps.
package migrations

import "embed"

// FS holds the SQL migration files applied by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
