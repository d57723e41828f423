// Package migrations ships the session audit schema inside the binary.
package migrations

import "embed"

// FS holds every .sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
