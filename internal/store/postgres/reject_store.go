package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedvm/internal/domain"
)

// RejectStore implements domain.RejectStore using PostgreSQL.
type RejectStore struct {
	pool *pgxpool.Pool
}

// NewRejectStore creates a new RejectStore backed by the given connection pool.
func NewRejectStore(pool *pgxpool.Pool) *RejectStore {
	return &RejectStore{pool: pool}
}

// Insert records one validation failure.
func (s *RejectStore) Insert(ctx context.Context, r domain.ListingReject) error {
	const query = `
		INSERT INTO listing_rejects (event_id, pubkey, kind, code, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, query, r.EventID, r.PubKey, r.Kind, r.Code, r.Message, createdAt); err != nil {
		return fmt.Errorf("postgres: insert reject %s: %w", r.EventID, err)
	}
	return nil
}

const rejectCols = `id, event_id, pubkey, kind, code, message, created_at`

func scanRejects(rows pgx.Rows) ([]domain.ListingReject, error) {
	var out []domain.ListingReject
	for rows.Next() {
		var r domain.ListingReject
		if err := rows.Scan(&r.ID, &r.EventID, &r.PubKey, &r.Kind, &r.Code, &r.Message, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns rejects newest first.
func (s *RejectStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ListingReject, error) {
	q := newListQuery(`SELECT ` + rejectCols + ` FROM listing_rejects`)
	q.window("created_at", opts)
	q.page("created_at DESC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rejects: %w", err)
	}
	defer rows.Close()

	out, err := scanRejects(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rejects: %w", err)
	}
	return out, nil
}

// ListBefore returns every reject created strictly before the cutoff.
func (s *RejectStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ListingReject, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rejectCols+` FROM listing_rejects WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rejects before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	out, err := scanRejects(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rejects: %w", err)
	}
	return out, nil
}

// DeleteBefore removes rejects created strictly before the cutoff.
func (s *RejectStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listing_rejects WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete rejects: %w", err)
	}
	return tag.RowsAffected(), nil
}
