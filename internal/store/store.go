package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the primary relational database holding user data. The agent
// treats it as read-only; the ingest loader is its only writer.
type Store struct {
	db *sql.DB
}

type ColumnDef struct {
	Name string
	Type string
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite is single-writer, and a single connection keeps :memory:
	// databases from splitting into one database per connection.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle; used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

// Schema returns the catalog snapshot: every table definition statement,
// sorted lexicographically and joined by newlines. Sorting makes the snapshot
// independent of catalog enumeration order, so identical schema content
// always hashes identically. Zero tables yields the empty string.
func (s *Store) Schema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sql FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return "", fmt.Errorf("read catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lines := make([]string, 0)
	for rows.Next() {
		var ddl sql.NullString
		if err := rows.Scan(&ddl); err != nil {
			return "", fmt.Errorf("scan catalog row: %w", err)
		}
		if !ddl.Valid {
			continue
		}
		lines = append(lines, ddl.String)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate catalog rows: %w", err)
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

// Execute runs a read query and fetches all rows. Failures come back as
// *ExecError so callers can branch on the kind instead of sniffing message
// text themselves.
func (s *Store) Execute(ctx context.Context, sqlText string) (Result, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, classify(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, classify(err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, classify(err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, classify(err)
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// CreateTableFrom creates a new table and fills it in one transaction. It
// fails rather than replaces when the table already exists.
func (s *Store) CreateTableFrom(ctx context.Context, name string, columns []ColumnDef, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	defs := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		defs = append(defs, quoteIdent(column.Name)+" "+column.Type)
		placeholders = append(placeholders, "?")
		names = append(names, quoteIdent(column.Name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert for %q: %w", name, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row has %d values, want %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row into %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest transaction: %w", err)
	}
	return nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
