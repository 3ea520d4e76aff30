// Package dbmigrations exposes the embedded SQL migrations for the broker schema.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into the broker binaries.
//
//go:embed *.sql
var Files embed.FS
