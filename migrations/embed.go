// Package migrations embeds the ordered Postgres schema files applied by portalctl migrate.
package migrations

import "embed"

// FS holds every *.up.sql file shipped with the binary.
//
//go:embed *.up.sql
var FS embed.FS
