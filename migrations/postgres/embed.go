// Package postgres embeds the SQL migration files.
package postgres

import "embed"

// FS contiene las migraciones del esquema de authflow.
//
//go:embed *.sql
var FS embed.FS
