package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rank_results (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	keyword TEXT NOT NULL,
	location TEXT NOT NULL,
	domain TEXT NOT NULL,
	status TEXT NOT NULL,
	rank INTEGER NOT NULL,
	url TEXT,
	http_code INTEGER NOT NULL,
	error TEXT,
	attempts INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS rank_results_batch ON rank_results (batch_id);
`

const columns = `id, batch_id, keyword, location, domain, status, rank, url, http_code, error, attempts, duration_ms, created_at`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// modernc serializes writers; one connection avoids SQLITE_BUSY under
	// concurrent Save calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, r *storage.RankRecord) error {
	query := `INSERT INTO rank_results (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := b.db.ExecContext(ctx, query,
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
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RankRecord, error) {
	query := `SELECT ` + columns + ` FROM rank_results WHERE 1=1`
	args := []any{}

	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if filter.Keyword != "" {
		query += ` AND keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var results []*storage.RankRecord
	for rows.Next() {
		var (
			r          storage.RankRecord
			status     string
			url, msg   sql.NullString
			durationMs int64
		)
		err := rows.Scan(
			&r.ID, &r.BatchID, &r.Keyword, &r.Location, &r.Domain, &status, &r.Rank,
			&url, &r.HTTPCode, &msg, &r.Attempts, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		r.Status = serp.Status(status)
		r.URL = url.String
		r.Error = msg.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
