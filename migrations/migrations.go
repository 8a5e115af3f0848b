// Package migrations embeds the SQLite schema.
package migrations

import "embed"

// FS holds the *.sql migrations at its root
//
//go:embed *.sql
var FS embed.FS
