package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// TableName is the table holding decoded rows in SQLite outputs.
const TableName = "observations"

// MetaTableName holds key/value facts about the decode.
const MetaTableName = "_decode_meta"

// WriteSQLite creates a SQLite database at path containing the decoded rows.
// Numeric columns are declared NUMERIC and empty values are stored as NULL;
// text columns keep their literal value. An existing file is replaced.
func WriteSQLite(ctx context.Context, path string, t *types.DecodedTable, meta map[string]string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sink: failed to remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("sink: failed to create SQLite database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("sink: failed to set journal mode: %w", err)
	}

	names := UniqueColumnNames(t)
	if _, err := db.ExecContext(ctx, createTableSQL(names, t.Columns)); err != nil {
		return fmt.Errorf("sink: failed to create %s table: %w", TableName, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE %s (key TEXT PRIMARY KEY, value TEXT NOT NULL) WITHOUT ROWID", quoteIdent(MetaTableName),
	)); err != nil {
		return fmt.Errorf("sink: failed to create meta table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL(names))
	if err != nil {
		return fmt.Errorf("sink: failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(names))
	for i, row := range t.Rows {
		for j, v := range row {
			if v == "" && t.Columns[j].Kind == types.KindNumeric {
				args[j] = nil
			} else {
				args[j] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sink: failed to insert row %d: %w", i+1, err)
		}
	}

	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?)", quoteIdent(MetaTableName)), k, v,
		); err != nil {
			return fmt.Errorf("sink: failed to insert meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: failed to commit: %w", err)
	}

	// Checkpoint WAL and switch to DELETE mode so the file is self-contained
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("sink: failed to checkpoint WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return fmt.Errorf("sink: failed to set journal mode to DELETE: %w", err)
	}
	return db.Close()
}

func createTableSQL(names []string, columns []types.Column) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(quoteIdent(TableName))
	sb.WriteString(" (")
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(name))
		if columns[i].Kind == types.KindText {
			sb.WriteString(" TEXT")
		} else {
			sb.WriteString(" NUMERIC")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

func insertSQL(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return "INSERT INTO " + quoteIdent(TableName) + " (" + strings.Join(quoted, ", ") + ") VALUES (" + placeholders + ")"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLiteMeta returns the facts recorded in the meta table of a SQLite output.
func SQLiteMeta(t *types.DecodedTable, vintage, fingerprint string) map[string]string {
	return map[string]string{
		"extract_date": t.ExtractDate.String(),
		"schema_date":  t.SchemaDate.String(),
		"vintage":      vintage,
		"fingerprint":  fingerprint,
		"row_count":    strconv.Itoa(len(t.Rows)),
	}
}
