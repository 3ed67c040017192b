// Package migrations embeds the SQL schema files so the binaries can migrate
// a database without shipping the directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
