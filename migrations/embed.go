// Package migrations embeds the SQL schema of the diagnostics database.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
