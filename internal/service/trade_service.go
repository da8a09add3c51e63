package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/trade"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

// ListingResolver looks up the validated listing behind an address.
type ListingResolver interface {
	ResolveListing(ctx context.Context, addr string) (trade.TradeListing, error)
}

// EnvelopeRequest asks for a negotiation message to be built. OrderID is
// generated for an order_request that does not carry one.
type EnvelopeRequest struct {
	Type        trade.MessageType `json:"type"`
	ListingAddr string            `json:"listing_addr"`
	OrderID     string            `json:"order_id,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
	Chain       trade.Chain       `json:"chain"`
}

// BuiltEnvelope is a validated envelope and the unsigned event carrying it.
type BuiltEnvelope struct {
	Envelope trade.RawEnvelope `json:"envelope"`
	Wire     nostr.WireParts   `json:"wire"`
}

// OrderQuote prices every line of an order against one listing.
type OrderQuote struct {
	ListingAddr string        `json:"listing_addr"`
	Items       []trade.Quote `json:"items"`
	Subtotal    value.Money   `json:"subtotal"`
	Discount    value.Money   `json:"discount"`
	Total       value.Money   `json:"total"`
}

// StageInfo describes one stage of the order lifecycle.
type StageInfo struct {
	Stage           trade.Stage `json:"stage"`
	RequestKind     int         `json:"request_kind"`
	ResultKind      int         `json:"result_kind"`
	RequiredMarkers []string    `json:"required_markers"`
	ResultMarker    string      `json:"result_marker"`
}

// TradeService builds and records negotiation messages.
type TradeService struct {
	listings ListingResolver
	messages domain.TradeMessageStore
	now      func() time.Time
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. messages may be nil in
// server-only deployments without a database.
func NewTradeService(listings ListingResolver, messages domain.TradeMessageStore, logger *slog.Logger) *TradeService {
	return &TradeService{
		listings: listings,
		messages: messages,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// BuildEnvelope checks the address and payload shape, then returns the
// envelope and its wire form.
func (s *TradeService) BuildEnvelope(req EnvelopeRequest) (BuiltEnvelope, error) {
	if _, err := trade.ParseMessageType(string(req.Type)); err != nil {
		return BuiltEnvelope{}, err
	}
	addr, err := trade.ParseAddress(req.ListingAddr)
	if err != nil {
		return BuiltEnvelope{}, err
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	decoded, err := trade.DecodePayload(req.Type, req.Payload)
	if err != nil {
		return BuiltEnvelope{}, err
	}

	orderID := req.OrderID
	payload := req.Payload
	if order, ok := decoded.(*trade.Order); ok {
		if orderID == "" {
			orderID = order.OrderID
		}
		if orderID == "" {
			orderID = trade.NewOrderID()
		}
		order.OrderID = orderID
		if order.ListingAddr == "" {
			order.ListingAddr = addr.String()
		}
		if payload, err = json.Marshal(order); err != nil {
			return BuiltEnvelope{}, fmt.Errorf("trade_service: encode order: %w", err)
		}
	}

	env := trade.NewEnvelope(req.Type, addr.String(), orderID, payload)
	wire, err := trade.ToWireParts(env, req.Chain)
	if err != nil {
		return BuiltEnvelope{}, err
	}
	return BuiltEnvelope{Envelope: env, Wire: wire}, nil
}

// Quote prices items against the listing at addr. All lines must share
// the listing's currency.
func (s *TradeService) Quote(ctx context.Context, addr string, items []trade.OrderItem) (OrderQuote, error) {
	if len(items) == 0 {
		return OrderQuote{}, errors.New("trade_service: quote needs at least one item")
	}
	tl, err := s.listings.ResolveListing(ctx, addr)
	if err != nil {
		return OrderQuote{}, err
	}

	out := OrderQuote{ListingAddr: tl.ListingAddr, Items: make([]trade.Quote, 0, len(items))}
	for i, item := range items {
		q, err := trade.QuoteItem(tl.Listing, item)
		if err != nil {
			return OrderQuote{}, fmt.Errorf("trade_service: quote item %d: %w", i, err)
		}
		if i == 0 {
			out.Subtotal = value.ZeroMoney(q.Subtotal.Currency)
			out.Discount = value.ZeroMoney(q.Subtotal.Currency)
			out.Total = value.ZeroMoney(q.Subtotal.Currency)
		}
		if out.Subtotal, err = out.Subtotal.Add(q.Subtotal); err != nil {
			return OrderQuote{}, fmt.Errorf("trade_service: quote item %d: %w", i, err)
		}
		if out.Discount, err = out.Discount.Add(q.Discount); err != nil {
			return OrderQuote{}, fmt.Errorf("trade_service: quote item %d: %w", i, err)
		}
		if out.Total, err = out.Total.Add(q.Total); err != nil {
			return OrderQuote{}, fmt.Errorf("trade_service: quote item %d: %w", i, err)
		}
		out.Items = append(out.Items, q)
	}
	return out, nil
}

// Stages lists the order lifecycle in protocol order.
func (s *TradeService) Stages() []StageInfo {
	stages := trade.Stages()
	out := make([]StageInfo, len(stages))
	for i, st := range stages {
		out[i] = StageInfo{
			Stage:           st,
			RequestKind:     st.RequestKind(),
			ResultKind:      st.ResultKind(),
			RequiredMarkers: st.RequiredMarkers(),
			ResultMarker:    st.ResultMarker(),
		}
	}
	return out
}

// DecodeMessage reads the envelope carried by a trade event.
func (s *TradeService) DecodeMessage(ev nostr.Event) (domain.TradeMessage, error) {
	parts := nostr.WireParts{Kind: ev.Kind, Content: ev.Content, Tags: ev.Tags}
	env, err := trade.EnvelopeFromWire[json.RawMessage](parts)
	if err != nil {
		return domain.TradeMessage{}, fmt.Errorf("%w: %w", domain.ErrInvalidEnvelope, err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return domain.TradeMessage{}, fmt.Errorf("trade_service: encode envelope: %w", err)
	}
	return domain.TradeMessage{
		EventID:     ev.ID,
		Kind:        ev.Kind,
		MessageType: string(env.MessageType),
		OrderID:     env.OrderIDOrEmpty(),
		ListingAddr: env.ListingAddr,
		PubKey:      ev.PubKey,
		Envelope:    raw,
		CreatedAt:   time.Unix(ev.CreatedAt, 0).UTC(),
	}, nil
}

// RecordMessage decodes a trade event and appends it to the message log.
// Re-recording the same event id is a no-op.
func (s *TradeService) RecordMessage(ctx context.Context, ev nostr.Event) (domain.TradeMessage, error) {
	msg, err := s.DecodeMessage(ev)
	if err != nil {
		return domain.TradeMessage{}, err
	}
	if s.messages == nil {
		return msg, nil
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return domain.TradeMessage{}, fmt.Errorf("trade_service: insert message %s: %w", ev.ID, err)
	}
	s.logger.DebugContext(ctx, "trade message recorded",
		slog.String("event_id", ev.ID),
		slog.String("type", msg.MessageType),
		slog.String("order_id", msg.OrderID),
	)
	return msg, nil
}

// OrderMessages returns the log for one order, oldest first.
func (s *TradeService) OrderMessages(ctx context.Context, orderID string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	if s.messages == nil {
		return nil, fmt.Errorf("trade_service: message log: %w", domain.ErrNotFound)
	}
	msgs, err := s.messages.ListByOrder(ctx, orderID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list order %s: %w", orderID, err)
	}
	return msgs, nil
}

// ListingMessages returns every message that references a listing.
func (s *TradeService) ListingMessages(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	if s.messages == nil {
		return nil, fmt.Errorf("trade_service: message log: %w", domain.ErrNotFound)
	}
	msgs, err := s.messages.ListByListing(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list listing %s: %w", addr, err)
	}
	return msgs, nil
}
