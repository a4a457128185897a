package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter shared by all server replicas.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
	now    func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxHits int) *PG {
	return NewPGWithQuerier(pool, window, maxHits)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxHits int) *PG {
	return &PG{pool: q, window: window, max: maxHits, now: time.Now}
}

// Allow bumps the key's hit counter, starting a new window when the previous one has elapsed.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	const q = `
INSERT INTO rate_limits (key, hits, window_start)
VALUES ($1, 1, now())
ON CONFLICT (key) DO UPDATE
SET
  hits = CASE WHEN now() - rate_limits.window_start > $2::interval THEN 1 ELSE rate_limits.hits + 1 END,
  window_start = CASE WHEN now() - rate_limits.window_start > $2::interval THEN now() ELSE rate_limits.window_start END
RETURNING hits, window_start`
	var (
		hits  int
		start time.Time
	)
	if err := l.pool.QueryRow(ctx, q, key, l.window).Scan(&hits, &start); err != nil {
		return false, 0, err
	}
	if hits > l.max {
		retry := start.Add(l.window).Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}
	return true, 0, nil
}

// Purge removes windows that ended before the cutoff.
func (l *PG) Purge(ctx context.Context) (int64, error) {
	const q = `DELETE FROM rate_limits WHERE window_start < $1`
	tag, err := l.pool.Exec(ctx, q, l.now().Add(-l.window))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
