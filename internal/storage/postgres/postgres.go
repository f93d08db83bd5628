package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS rank_results (
	id UUID PRIMARY KEY,
	batch_id UUID NOT NULL,
	keyword TEXT NOT NULL,
	location TEXT NOT NULL,
	domain TEXT NOT NULL,
	status TEXT NOT NULL,
	rank INTEGER NOT NULL,
	url TEXT NOT NULL,
	http_code INTEGER NOT NULL,
	error TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rank_results_batch ON rank_results (batch_id);
`

const columns = `id, batch_id, keyword, location, domain, status, rank, url, http_code, error, attempts, duration_ms, created_at`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, r *storage.RankRecord) error {
	query := `INSERT INTO rank_results (` + columns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := b.pool.Exec(ctx, query,
		r.ID,
		r.BatchID,
		r.Keyword,
		r.Location,
		r.Domain,
		string(r.Status),
		r.Rank,
		r.URL,
		r.HTTPCode,
		r.Error,
		r.Attempts,
		r.Duration.Milliseconds(),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RankRecord, error) {
	query := `SELECT id::text, batch_id::text, keyword, location, domain, status, rank, url, http_code, error, attempts, duration_ms, created_at
	FROM rank_results WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, paramCount)
		args = append(args, filter.BatchID)
		paramCount++
	}
	if filter.Keyword != "" {
		query += fmt.Sprintf(` AND keyword = $%d`, paramCount)
		args = append(args, filter.Keyword)
		paramCount++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, paramCount)
		args = append(args, string(filter.Status))
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var results []*storage.RankRecord
	for rows.Next() {
		var (
			r          storage.RankRecord
			status     string
			durationMs int64
		)
		err := rows.Scan(
			&r.ID, &r.BatchID, &r.Keyword, &r.Location, &r.Domain, &status, &r.Rank,
			&r.URL, &r.HTTPCode, &r.Error, &r.Attempts, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		r.Status = serp.Status(status)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
