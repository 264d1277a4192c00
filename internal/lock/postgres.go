package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createLocksTable = `
CREATE TABLE IF NOT EXISTS transition_locks (
	key        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
)`

// An existing row only blocks the insert while it is unexpired; an expired
// row is taken over in the same statement.
const acquireLock = `
INSERT INTO transition_locks (key, expires_at)
VALUES ($1, now() + $2::bigint * interval '1 millisecond')
ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE transition_locks.expires_at < now()
RETURNING key`

// PostgresStore keeps lock rows in Postgres for deployments without Redis.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createLocksTable); err != nil {
		return fmt.Errorf("create transition_locks: %w", err)
	}
	return nil
}

func (p *PostgresStore) TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var got string
	err := p.pool.QueryRow(ctx, acquireLock, key, ttl.Milliseconds()).Scan(&got)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM transition_locks WHERE key = $1", key)
	return err
}

// Sweep deletes expired rows; the lock stays correct without it.
func (p *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM transition_locks WHERE expires_at < now()")
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
