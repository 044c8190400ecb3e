package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/verihuman/verihuman-api/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         UUID PRIMARY KEY,
	kind       TEXT NOT NULL,
	input      TEXT NOT NULL,
	output     TEXT NOT NULL,
	path       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS history_kind_created_at_idx ON history (kind, created_at DESC);
CREATE INDEX IF NOT EXISTS history_created_at_idx ON history (created_at DESC);
`

// HistoryRepo implements domain.HistoryRepository.
type HistoryRepo struct{ Pool PgxPool }

// NewHistoryRepo constructs a HistoryRepo with the given pool.
func NewHistoryRepo(p PgxPool) *HistoryRepo { return &HistoryRepo{Pool: p} }

// Migrate creates the history table when it does not exist.
func (r *HistoryRepo) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("op=history.migrate: %w", err)
	}
	return nil
}

// Create inserts e and returns its id. Missing id and created_at are filled in.
func (r *HistoryRepo) Create(ctx domain.Context, e domain.HistoryEntry) (string, error) {
	ctx, span := otel.Tracer("repo.history").Start(ctx, "history.Create")
	defer span.End()
	span.SetAttributes(attribute.String("history.kind", string(e.Kind)))

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO history (id, kind, input, output, path, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, e.ID, string(e.Kind), e.Input, e.Output, e.Path, e.CreatedAt); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=history.create: %w", err)
	}
	return e.ID, nil
}

// List returns the newest entries first. An empty kind lists every kind.
func (r *HistoryRepo) List(ctx domain.Context, kind domain.HistoryKind, limit int) ([]domain.HistoryEntry, error) {
	ctx, span := otel.Tracer("repo.history").Start(ctx, "history.List")
	defer span.End()
	span.SetAttributes(attribute.String("history.kind", string(kind)), attribute.Int("history.limit", limit))

	q := `SELECT id::text, kind, input, output, path, created_at FROM history
		WHERE ($1 = '' OR kind = $1) ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, string(kind), limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=history.list: %w", err)
	}
	defer rows.Close()

	out := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.HistoryEntry
		var k string
		if err := rows.Scan(&e.ID, &k, &e.Input, &e.Output, &e.Path, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=history.list.scan: %w", err)
		}
		e.Kind = domain.HistoryKind(k)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=history.list.rows: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes entries created before cutoff and returns how many were removed.
func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := otel.Tracer("repo.history").Start(ctx, "history.DeleteOlderThan")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM history WHERE created_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("op=history.delete_older_than: %w", err)
	}
	return tag.RowsAffected(), nil
}
