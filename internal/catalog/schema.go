// Package catalog persists parsed schemas and the record of decoded extracts
// in a SQLite database.
package catalog

// CreateSchemasTableSQL stores one registered layout per effective date.
const CreateSchemasTableSQL = `
CREATE TABLE IF NOT EXISTS schemas (
    effective_date TEXT PRIMARY KEY,
    vintage TEXT NOT NULL,
    dialect TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    field_count INTEGER NOT NULL,
    width INTEGER NOT NULL,
    schema_json TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateDecodedExtractsTableSQL records every decoded extract.
const CreateDecodedExtractsTableSQL = `
CREATE TABLE IF NOT EXISTS decoded_extracts (
    extract_id TEXT PRIMARY KEY,
    source_path TEXT NOT NULL UNIQUE,
    extract_date TEXT NOT NULL,
    schema_date TEXT NOT NULL,
    vintage TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    output_path TEXT NOT NULL,
    format TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    anomaly_count INTEGER NOT NULL,
    text_issue_count INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    run_id TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates lookup indexes.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_extracts_date ON decoded_extracts(extract_date)`,
	`CREATE INDEX IF NOT EXISTS idx_extracts_schema ON decoded_extracts(schema_date)`,
	`CREATE INDEX IF NOT EXISTS idx_extracts_run ON decoded_extracts(run_id)`,
}

// AllSchemaSQL returns every statement needed to initialize the catalog.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateSchemasTableSQL,
		CreateDecodedExtractsTableSQL,
	}
	return append(stmts, CreateIndexesSQL...)
}
