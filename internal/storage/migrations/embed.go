// Package migrations applies the embedded SQL schema scripts in version order.
package migrations

import "embed"

// FS holds scripts/NNN_name.sql files.
//
//go:embed scripts/*.sql
var FS embed.FS
