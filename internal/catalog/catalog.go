package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Catalog records schemas and decoded extracts.
type Catalog interface {
	// SaveSchema stores s, replacing any schema with the same effective date.
	SaveSchema(ctx context.Context, s *types.Schema) error

	// GetSchema returns the schema registered for exactly the given date.
	GetSchema(ctx context.Context, effective types.YearMonth) (*types.Schema, error)

	// LoadSchemas returns every stored schema in ascending date order.
	LoadSchemas(ctx context.Context) ([]*types.Schema, error)

	// RecordExtract stores the outcome of decoding one extract, replacing any
	// earlier record for the same source path.
	RecordExtract(ctx context.Context, rec *ExtractRecord) error

	// GetExtract returns the record for a source path.
	GetExtract(ctx context.Context, sourcePath string) (*ExtractRecord, error)

	// ListExtracts returns every record ordered by extract date and source.
	ListExtracts(ctx context.Context) ([]*ExtractRecord, error)

	// TotalRows returns the number of decoded observations across all extracts.
	TotalRows(ctx context.Context) (int64, error)

	// Close closes the catalog database connection.
	Close() error
}

// ExtractRecord describes one decoded extract.
type ExtractRecord struct {
	ExtractID      string          `json:"extract_id"`
	SourcePath     string          `json:"source_path"`
	ExtractDate    types.YearMonth `json:"extract_date"`
	SchemaDate     types.YearMonth `json:"schema_date"`
	Vintage        string          `json:"vintage"`
	Fingerprint    string          `json:"fingerprint"`
	OutputPath     string          `json:"output_path"`
	Format         string          `json:"format"`
	RowCount       int64           `json:"row_count"`
	AnomalyCount   int64           `json:"anomaly_count"`
	TextIssueCount int64           `json:"text_issue_count"`
	Checksum       string          `json:"checksum"`
	RunID          string          `json:"run_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = fmt.Errorf("catalog: not found")

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

// NewCatalog opens or creates the catalog database at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	c.readDB = readDB

	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSchema stores a schema as JSON together with its summary columns.
func (c *SQLiteCatalog) SaveSchema(ctx context.Context, s *types.Schema) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("catalog: failed to marshal schema %s: %w", s.Vintage, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO schemas (effective_date, vintage, dialect, fingerprint, field_count, width, schema_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(effective_date) DO UPDATE SET
			vintage = excluded.vintage,
			dialect = excluded.dialect,
			fingerprint = excluded.fingerprint,
			field_count = excluded.field_count,
			width = excluded.width,
			schema_json = excluded.schema_json,
			created_at = excluded.created_at`,
		s.EffectiveDate.String(), s.Vintage, string(s.Dialect), schema.Fingerprint(s),
		len(s.Fields), s.Width(), string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to save schema %s: %w", s.Vintage, err)
	}
	return nil
}

// GetSchema returns one stored schema.
func (c *SQLiteCatalog) GetSchema(ctx context.Context, effective types.YearMonth) (*types.Schema, error) {
	var data string
	err := c.readDB.QueryRowContext(ctx,
		"SELECT schema_json FROM schemas WHERE effective_date = ?", effective.String(),
	).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: schema %s", ErrNotFound, effective)
		}
		return nil, fmt.Errorf("catalog: failed to get schema %s: %w", effective, err)
	}
	return unmarshalSchema(data)
}

// LoadSchemas returns all stored schemas.
func (c *SQLiteCatalog) LoadSchemas(ctx context.Context) ([]*types.Schema, error) {
	rows, err := c.readDB.QueryContext(ctx, "SELECT schema_json FROM schemas ORDER BY effective_date")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list schemas: %w", err)
	}
	defer rows.Close()

	var out []*types.Schema
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan schema: %w", err)
		}
		s, err := unmarshalSchema(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unmarshalSchema(data string) (*types.Schema, error) {
	var s types.Schema
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("catalog: failed to unmarshal schema: %w", err)
	}
	return &s, nil
}

// RecordExtract upserts an extract record keyed by source path.
func (c *SQLiteCatalog) RecordExtract(ctx context.Context, rec *ExtractRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO decoded_extracts (
			extract_id, source_path, extract_date, schema_date, vintage, fingerprint,
			output_path, format, row_count, anomaly_count, text_issue_count,
			checksum, run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			extract_id = excluded.extract_id,
			extract_date = excluded.extract_date,
			schema_date = excluded.schema_date,
			vintage = excluded.vintage,
			fingerprint = excluded.fingerprint,
			output_path = excluded.output_path,
			format = excluded.format,
			row_count = excluded.row_count,
			anomaly_count = excluded.anomaly_count,
			text_issue_count = excluded.text_issue_count,
			checksum = excluded.checksum,
			run_id = excluded.run_id,
			created_at = excluded.created_at`,
		rec.ExtractID, rec.SourcePath, rec.ExtractDate.String(), rec.SchemaDate.String(),
		rec.Vintage, rec.Fingerprint, rec.OutputPath, rec.Format,
		rec.RowCount, rec.AnomalyCount, rec.TextIssueCount,
		rec.Checksum, rec.RunID, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to record extract %s: %w", rec.SourcePath, err)
	}
	return nil
}

const selectExtractSQL = `
	SELECT extract_id, source_path, extract_date, schema_date, vintage, fingerprint,
		output_path, format, row_count, anomaly_count, text_issue_count,
		checksum, run_id, created_at
	FROM decoded_extracts`

// GetExtract returns the record for one source path.
func (c *SQLiteCatalog) GetExtract(ctx context.Context, sourcePath string) (*ExtractRecord, error) {
	row := c.readDB.QueryRowContext(ctx, selectExtractSQL+" WHERE source_path = ?", sourcePath)
	rec, err := scanExtract(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: extract %s", ErrNotFound, sourcePath)
		}
		return nil, fmt.Errorf("catalog: failed to get extract %s: %w", sourcePath, err)
	}
	return rec, nil
}

// ListExtracts returns every extract record.
func (c *SQLiteCatalog) ListExtracts(ctx context.Context) ([]*ExtractRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, selectExtractSQL+" ORDER BY extract_date, source_path")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list extracts: %w", err)
	}
	defer rows.Close()

	var out []*ExtractRecord
	for rows.Next() {
		rec, err := scanExtract(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan extract: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TotalRows sums row counts across all extracts.
func (c *SQLiteCatalog) TotalRows(ctx context.Context) (int64, error) {
	var total int64
	err := c.readDB.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(row_count), 0) FROM decoded_extracts",
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to sum rows: %w", err)
	}
	return total, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExtract(s scanner) (*ExtractRecord, error) {
	var rec ExtractRecord
	var extractDate, schemaDate string
	var createdAt int64
	err := s.Scan(
		&rec.ExtractID, &rec.SourcePath, &extractDate, &schemaDate, &rec.Vintage, &rec.Fingerprint,
		&rec.OutputPath, &rec.Format, &rec.RowCount, &rec.AnomalyCount, &rec.TextIssueCount,
		&rec.Checksum, &rec.RunID, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.ExtractDate, err = types.ParseYearMonth(extractDate); err != nil {
		return nil, err
	}
	if rec.SchemaDate, err = types.ParseYearMonth(schemaDate); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// Close closes both database handles.
func (c *SQLiteCatalog) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
