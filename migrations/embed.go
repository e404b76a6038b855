// Package migrations embeds the SQL schema applied when drafts are kept in
// PostgreSQL.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
