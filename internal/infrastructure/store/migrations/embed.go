// Package migrations holds the event log schema for the SQL backends.
package migrations

import _ "embed"

//go:embed sqlite.sql
var SQLite string

//go:embed postgres.sql
var Postgres string
