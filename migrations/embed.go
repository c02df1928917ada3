// Package migrations holds the SQL schema of the server, applied in file
// name order by db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
