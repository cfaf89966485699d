// Package migrations embeds the SQL schema files applied by falcoctl migrate.
package migrations

import "embed"

// Files holds the goose-annotated *.sql migrations.
//
//go:embed *.sql
var Files embed.FS
