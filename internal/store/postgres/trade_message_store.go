package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedvm/internal/domain"
)

// TradeMessageStore implements domain.TradeMessageStore using PostgreSQL.
type TradeMessageStore struct {
	pool *pgxpool.Pool
}

// NewTradeMessageStore creates a new TradeMessageStore backed by the given
// connection pool.
func NewTradeMessageStore(pool *pgxpool.Pool) *TradeMessageStore {
	return &TradeMessageStore{pool: pool}
}

// Insert stores a message. Re-delivered events (same event id) are
// silently skipped.
func (s *TradeMessageStore) Insert(ctx context.Context, m domain.TradeMessage) error {
	const query = `
		INSERT INTO trade_messages (
			event_id, kind, message_type, order_id, listing_addr, pubkey, envelope, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		m.EventID, m.Kind, m.MessageType, m.OrderID, m.ListingAddr, m.PubKey,
		[]byte(m.Envelope), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade message %s: %w", m.EventID, err)
	}
	return nil
}

const messageCols = `event_id, kind, message_type, order_id, listing_addr, pubkey, envelope, created_at`

func scanMessages(rows pgx.Rows) ([]domain.TradeMessage, error) {
	var out []domain.TradeMessage
	for rows.Next() {
		var (
			m   domain.TradeMessage
			env []byte
		)
		if err := rows.Scan(&m.EventID, &m.Kind, &m.MessageType, &m.OrderID,
			&m.ListingAddr, &m.PubKey, &env, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Envelope = env
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *TradeMessageStore) list(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	q := newListQuery(`SELECT ` + messageCols + ` FROM trade_messages`)
	q.and(col, "=", val)
	q.window("created_at", opts)
	q.page("created_at ASC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade messages by %s: %w", col, err)
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade messages: %w", err)
	}
	return out, nil
}

// ListByOrder returns the negotiation history of one order, oldest first.
func (s *TradeMessageStore) ListByOrder(ctx context.Context, orderID string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	return s.list(ctx, "order_id", orderID, opts)
}

// ListByListing returns every message that references a listing, oldest first.
func (s *TradeMessageStore) ListByListing(ctx context.Context, listingAddr string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	return s.list(ctx, "listing_addr", listingAddr, opts)
}

// ListBefore returns every message created strictly before the cutoff.
func (s *TradeMessageStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM trade_messages WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade messages before: %w", err)
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade messages: %w", err)
	}
	return out, nil
}
