package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists the agent's own state: the singleton schema summary cache
// and the append-only interaction log. It never touches the primary database.
type Store struct {
	db *sql.DB
}

// ErrNoSummary is returned when no schema summary has been cached yet.
var ErrNoSummary = errors.New("no cached schema summary")

type SummaryRecord struct {
	SchemaHash  string
	Summary     string
	LastUpdated time.Time
}

type Interaction struct {
	ID          int64
	Timestamp   time.Time
	UserQuery   string
	SQLQuery    string
	SQLResult   string
	FinalAnswer string
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("memory path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate memory database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_cache (
		id             INTEGER PRIMARY KEY,
		schema_hash    TEXT NOT NULL,
		schema_summary TEXT NOT NULL,
		last_updated   DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interaction_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp    DATETIME NOT NULL,
		user_query   TEXT NOT NULL,
		sql_query    TEXT NOT NULL,
		sql_result   TEXT NOT NULL,
		final_answer TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetSummary reads the singleton cache record.
func (s *Store) GetSummary(ctx context.Context) (SummaryRecord, error) {
	var record SummaryRecord
	err := s.db.QueryRowContext(ctx,
		"SELECT schema_hash, schema_summary, last_updated FROM schema_cache WHERE id = 1",
	).Scan(&record.SchemaHash, &record.Summary, &record.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return SummaryRecord{}, ErrNoSummary
	}
	if err != nil {
		return SummaryRecord{}, fmt.Errorf("read schema cache: %w", err)
	}
	return record, nil
}

// PutSummary overwrites the singleton cache record in place, creating it on
// first use. Concurrent writers race benignly; the last one wins.
func (s *Store) PutSummary(ctx context.Context, hash, summary string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_cache (id, schema_hash, schema_summary, last_updated)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			schema_hash = excluded.schema_hash,
			schema_summary = excluded.schema_summary,
			last_updated = excluded.last_updated`,
		hash, summary, now,
	)
	if err != nil {
		return fmt.Errorf("upsert schema cache: %w", err)
	}
	return nil
}

// AppendInteraction adds one row to the append-only log.
func (s *Store) AppendInteraction(ctx context.Context, userQuery, sqlQuery, sqlResult, finalAnswer string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_log (timestamp, user_query, sql_query, sql_result, final_answer)
		VALUES (?, ?, ?, ?, ?)`,
		now, userQuery, sqlQuery, sqlResult, finalAnswer,
	)
	if err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

// ListInteractions returns the full log in chronological order.
func (s *Store) ListInteractions(ctx context.Context) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_query, sql_query, sql_result, final_answer
		FROM interaction_log
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	interactions := make([]Interaction, 0)
	for rows.Next() {
		var interaction Interaction
		if err := rows.Scan(
			&interaction.ID,
			&interaction.Timestamp,
			&interaction.UserQuery,
			&interaction.SQLQuery,
			&interaction.SQLResult,
			&interaction.FinalAnswer,
		); err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		interactions = append(interactions, interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}
	return interactions, nil
}
