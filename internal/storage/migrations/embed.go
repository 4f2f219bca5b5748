package migrations

import "embed"

// PostgresFS holds the PostgreSQL schema files for the whale-transfer
// tables, applied at startup by RunPostgresMigrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse variant of the same schema, applied
// statement-by-statement by RunClickhouseMigrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
