package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedvm/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// upsertListing keeps the newest event per address. An older replaceable
// event never overwrites a newer one.
const upsertListing = `
	INSERT INTO listings (
		addr, event_id, seller_pubkey, listing_id, title, product_type,
		listing, event, published_at, ingested_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, NOW()
	)
	ON CONFLICT (addr) DO UPDATE SET
		event_id     = EXCLUDED.event_id,
		title        = EXCLUDED.title,
		product_type = EXCLUDED.product_type,
		listing      = EXCLUDED.listing,
		event        = EXCLUDED.event,
		published_at = EXCLUDED.published_at,
		ingested_at  = EXCLUDED.ingested_at,
		updated_at   = NOW()
	WHERE listings.published_at <= EXCLUDED.published_at`

func listingArgs(r domain.ListingRecord) ([]any, error) {
	listingJSON, err := json.Marshal(r.Listing)
	if err != nil {
		return nil, fmt.Errorf("marshal listing: %w", err)
	}
	eventJSON, err := json.Marshal(r.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return []any{
		r.Addr, r.EventID, r.SellerPubKey, r.ListingID, r.Title, r.ProductType,
		listingJSON, eventJSON, r.PublishedAt, r.IngestedAt,
	}, nil
}

// Upsert inserts or replaces a single listing.
func (s *ListingStore) Upsert(ctx context.Context, r domain.ListingRecord) error {
	args, err := listingArgs(r)
	if err != nil {
		return fmt.Errorf("postgres: upsert listing %s: %w", r.Addr, err)
	}
	if _, err := s.pool.Exec(ctx, upsertListing, args...); err != nil {
		return fmt.Errorf("postgres: upsert listing %s: %w", r.Addr, err)
	}
	return nil
}

// UpsertBatch inserts or replaces multiple listings in a single batch operation.
func (s *ListingStore) UpsertBatch(ctx context.Context, recs []domain.ListingRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range recs {
		args, err := listingArgs(r)
		if err != nil {
			return fmt.Errorf("postgres: upsert listing batch %s: %w", r.Addr, err)
		}
		batch.Queue(upsertListing, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert listing batch item %d: %w", i, err)
		}
	}
	return nil
}

const listingCols = `addr, event_id, seller_pubkey, listing_id, title, product_type,
	listing, event, published_at, ingested_at`

func scanListing(row pgx.Row) (domain.ListingRecord, error) {
	var (
		r           domain.ListingRecord
		listingJSON []byte
		eventJSON   []byte
	)
	if err := row.Scan(
		&r.Addr, &r.EventID, &r.SellerPubKey, &r.ListingID, &r.Title, &r.ProductType,
		&listingJSON, &eventJSON, &r.PublishedAt, &r.IngestedAt,
	); err != nil {
		return domain.ListingRecord{}, err
	}
	if err := json.Unmarshal(listingJSON, &r.Listing); err != nil {
		return domain.ListingRecord{}, fmt.Errorf("unmarshal listing: %w", err)
	}
	if err := json.Unmarshal(eventJSON, &r.Event); err != nil {
		return domain.ListingRecord{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return r, nil
}

// GetByAddr retrieves a listing by its address.
func (s *ListingStore) GetByAddr(ctx context.Context, addr string) (domain.ListingRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingCols+` FROM listings WHERE addr = $1`, addr)
	r, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ListingRecord{}, domain.ErrNotFound
		}
		return domain.ListingRecord{}, fmt.Errorf("postgres: get listing %s: %w", addr, err)
	}
	return r, nil
}

// List returns listings newest first, optionally narrowed by seller or
// product type.
func (s *ListingStore) List(ctx context.Context, f domain.ListingFilter) ([]domain.ListingRecord, error) {
	q := newListQuery(`SELECT ` + listingCols + ` FROM listings`)
	if f.SellerPubKey != "" {
		q.and("seller_pubkey", "=", f.SellerPubKey)
	}
	if f.ProductType != "" {
		q.and("product_type", "=", f.ProductType)
	}
	q.window("published_at", f.ListOpts)
	q.page("published_at DESC, addr", f.ListOpts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.ListingRecord
	for rows.Next() {
		r, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return out, nil
}

// Delete removes a listing. Deleting an unknown address is not an error.
func (s *ListingStore) Delete(ctx context.Context, addr string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE addr = $1`, addr); err != nil {
		return fmt.Errorf("postgres: delete listing %s: %w", addr, err)
	}
	return nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return n, nil
}
