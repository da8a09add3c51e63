package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/service"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

// TradeService is what the trade handler needs from the service layer.
type TradeService interface {
	BuildEnvelope(req service.EnvelopeRequest) (service.BuiltEnvelope, error)
	Quote(ctx context.Context, addr string, items []trade.OrderItem) (service.OrderQuote, error)
	Stages() []service.StageInfo
	OrderMessages(ctx context.Context, orderID string, opts domain.ListOpts) ([]domain.TradeMessage, error)
	ListingMessages(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.TradeMessage, error)
}

// TradeHandler serves negotiation endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// BuildEnvelope validates a negotiation message and returns it with its
// unsigned event form.
// POST /api/trade/envelopes
func (h *TradeHandler) BuildEnvelope(w http.ResponseWriter, r *http.Request) {
	var req service.EnvelopeRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	built, err := h.trades.BuildEnvelope(req)
	if err != nil {
		writeServiceError(w, r, h.logger, "build envelope", err)
		return
	}
	writeJSON(w, http.StatusOK, built)
}

// Stages lists the order lifecycle.
// GET /api/trade/stages
func (h *TradeHandler) Stages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stages": h.trades.Stages()})
}

type quoteRequest struct {
	ListingAddr string            `json:"listing_addr"`
	Items       []trade.OrderItem `json:"items"`
}

// Quote prices order items against a stored listing.
// POST /api/trade/quote
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ListingAddr == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "listing_addr and items are required")
		return
	}
	quote, err := h.trades.Quote(r.Context(), req.ListingAddr, req.Items)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote order", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// OrderMessages returns the negotiation log of one order.
// GET /api/trade/orders/{id}/messages
func (h *TradeHandler) OrderMessages(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	msgs, err := h.trades.OrderMessages(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list order messages", err)
		return
	}
	writeMessages(w, msgs)
}

// ListingMessages returns every negotiation message referencing a listing.
// GET /api/listings/{addr}/messages
func (h *TradeHandler) ListingMessages(w http.ResponseWriter, r *http.Request) {
	addr := pathParam(r, "addr")
	msgs, err := h.trades.ListingMessages(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list listing messages", err)
		return
	}
	writeMessages(w, msgs)
}

func writeMessages(w http.ResponseWriter, msgs []domain.TradeMessage) {
	if msgs == nil {
		msgs = []domain.TradeMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
