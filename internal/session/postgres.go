package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "atsbeaters/internal/errors"
)

// PostgresStore keeps the record in a key/value table
type PostgresStore struct {
	pool *pgxpool.Pool
	key  string
}

type migration struct {
	name  string
	query string
}

var migrations = []migration{
	{
		name: "create_kv_store",
		query: `CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	},
}

// NewPostgresStore connects, pings and migrates
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig, "session.databaseURL is required for the postgres backend", nil)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to connect to database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to ping database", err)
	}
	s := &PostgresStore{pool: pool, key: StorageKey}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m.query); err != nil {
			return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "migration failed", err).
				WithContext("migration", m.name)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, s.key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to load session", err)
	}
	return value, nil
}

func (s *PostgresStore) Save(ctx context.Context, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_store (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`,
		s.key, data,
	)
	if err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to save session", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, s.key); err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to clear session", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
