// Package sqlite implements the turn log on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	destination       TEXT NOT NULL DEFAULT '',
	display_name      TEXT NOT NULL DEFAULT '',
	text              TEXT NOT NULL,
	fragments         TEXT NOT NULL,
	reason            TEXT NOT NULL,
	status            TEXT NOT NULL,
	error             TEXT NOT NULL DEFAULT '',
	first_fragment_at INTEGER NOT NULL,
	flushed_at        INTEGER NOT NULL,
	completed_at      INTEGER NOT NULL,
	duration_ms       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_turns_user_flushed ON turns (user_id, flushed_at DESC);
CREATE INDEX IF NOT EXISTS idx_turns_flushed ON turns (flushed_at DESC);
`

// SQLiteTurnStore implements store.TurnStore.
type SQLiteTurnStore struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*SQLiteTurnStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	if err := addColumn(db, "turns", "duration_ms", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteTurnStore{db: db}, nil
}

func (s *SQLiteTurnStore) SaveTurn(ctx context.Context, rec *store.TurnRecord) error {
	frags, err := json.Marshal(rec.Fragments)
	if err != nil {
		return fmt.Errorf("encode fragments: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_id, destination, display_name, text, fragments, reason, status, error,
		                    first_fragment_at, flushed_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, error = excluded.error,
		   completed_at = excluded.completed_at, duration_ms = excluded.duration_ms`,
		rec.ID, rec.UserID, rec.Destination, rec.DisplayName, rec.Text, string(frags), rec.Reason,
		string(rec.Status), rec.Error,
		rec.FirstFragmentAt.UnixMilli(), rec.FlushedAt.UnixMilli(), rec.CompletedAt.UnixMilli(),
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *SQLiteTurnStore) ListTurns(ctx context.Context, f store.TurnFilter) ([]store.TurnRecord, error) {
	q := `SELECT id, user_id, destination, display_name, text, fragments, reason, status, error,
	             first_fragment_at, flushed_at, completed_at, duration_ms
	      FROM turns`
	var args []any
	if f.UserID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, f.UserID)
	}
	q += ` ORDER BY flushed_at DESC, id DESC LIMIT ?`
	args = append(args, f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []store.TurnRecord
	for rows.Next() {
		var (
			rec                       store.TurnRecord
			frags, status             string
			firstAt, flushedAt, doneAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Destination, &rec.DisplayName, &rec.Text,
			&frags, &rec.Reason, &status, &rec.Error, &firstAt, &flushedAt, &doneAt, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(frags), &rec.Fragments); err != nil {
			return nil, fmt.Errorf("decode fragments for %s: %w", rec.ID, err)
		}
		rec.Status = store.TurnStatus(status)
		rec.FirstFragmentAt = time.UnixMilli(firstAt).UTC()
		rec.FlushedAt = time.UnixMilli(flushedAt).UTC()
		rec.CompletedAt = time.UnixMilli(doneAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteTurnStore) Close() error { return s.db.Close() }

// addColumn adds a column that older database files were created without.
func addColumn(db *sql.DB, table, column, def string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, def)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

var _ store.TurnStore = (*SQLiteTurnStore)(nil)
