package pg

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
	"github.com/nextlevelbuilder/turnbuf/internal/upgrade"
)

// OpenDB opens a Postgres pool through the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PGTurnStore implements store.TurnStore backed by Postgres. The schema is
// owned by the migrations directory (see `turnbuf migrate up`).
type PGTurnStore struct {
	db *sql.DB
}

func NewPGTurnStore(db *sql.DB) *PGTurnStore {
	return &PGTurnStore{db: db}
}

// NewPGStores opens dsn, verifies the migrated schema version and returns
// the Postgres-backed stores.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	status, err := upgrade.CheckSchema(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}
	if err := status.Err(); err != nil {
		db.Close()
		return nil, err
	}
	return &store.Stores{Turns: NewPGTurnStore(db)}, nil
}

func (s *PGTurnStore) SaveTurn(ctx context.Context, rec *store.TurnRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_id, destination, display_name, text, fragments, reason, status, error,
		                    first_fragment_at, flushed_at, completed_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error,
		   completed_at = EXCLUDED.completed_at, duration_ms = EXCLUDED.duration_ms`,
		rec.ID, rec.UserID, rec.Destination, rec.DisplayName, rec.Text, pq.Array(rec.Fragments),
		rec.Reason, string(rec.Status), rec.Error,
		rec.FirstFragmentAt, rec.FlushedAt, rec.CompletedAt, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *PGTurnStore) ListTurns(ctx context.Context, f store.TurnFilter) ([]store.TurnRecord, error) {
	q := `SELECT id, user_id, destination, display_name, text, fragments, reason, status, error,
	             first_fragment_at, flushed_at, completed_at, duration_ms
	      FROM turns`
	args := []any{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		q += fmt.Sprintf(` WHERE user_id = $%d`, len(args))
	}
	args = append(args, f.EffectiveLimit())
	q += fmt.Sprintf(` ORDER BY flushed_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []store.TurnRecord
	for rows.Next() {
		var rec store.TurnRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Destination, &rec.DisplayName, &rec.Text,
			pq.Array(&rec.Fragments), &rec.Reason, &status, &rec.Error,
			&rec.FirstFragmentAt, &rec.FlushedAt, &rec.CompletedAt, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		rec.Status = store.TurnStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGTurnStore) Close() error { return s.db.Close() }

var _ store.TurnStore = (*PGTurnStore)(nil)
