// Package sql embeds the schema applied at startup: the Postgres tracking
// tables, the ClickHouse activity ledger DDL, and an optional demo seed.
package sql

import (
	"embed"
)

//go:embed schema/*.sql
//go:embed seeds/demo/*.sql
//go:embed clickhouse/*.sql
var Content embed.FS
