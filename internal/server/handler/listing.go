package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

// ListingService is what the listing handler needs from the service layer.
type ListingService interface {
	ValidateResult(ev nostr.Event) (trade.ListingValidateResult, *trade.TradeListing)
	Get(ctx context.Context, addr string) (domain.ListingRecord, error)
	List(ctx context.Context, filter domain.ListingFilter) ([]domain.ListingRecord, error)
	Count(ctx context.Context) (int64, error)
	Tags(l listing.Listing) ([][]string, error)
	WireParts(l listing.Listing) (nostr.WireParts, error)
}

// ListingHandler serves listing validation, encoding and lookup endpoints.
type ListingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logger}
}

type validateResponse struct {
	trade.ListingValidateResult
	Listing *trade.TradeListing `json:"listing,omitempty"`
}

// Validate checks a raw listing event. Invalid events get a 422 with the
// structured error.
// POST /api/listings/validate
func (h *ListingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var ev nostr.Event
	if err := decodeJSON(r, w, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, tl := h.listings.ValidateResult(ev)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, validateResponse{ListingValidateResult: result, Listing: tl})
}

// Tags encodes a listing into its event tags.
// POST /api/listings/tags
func (h *ListingHandler) Tags(w http.ResponseWriter, r *http.Request) {
	var l listing.Listing
	if err := decodeJSON(r, w, &l); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tags, err := h.listings.Tags(l)
	if err != nil {
		writeServiceError(w, r, h.logger, "encode listing tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Wire renders a listing as an unsigned event.
// POST /api/listings/wire
func (h *ListingHandler) Wire(w http.ResponseWriter, r *http.Request) {
	var l listing.Listing
	if err := decodeJSON(r, w, &l); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	parts, err := h.listings.WireParts(l)
	if err != nil {
		writeServiceError(w, r, h.logger, "encode listing event", err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

// Get returns the stored listing at an address.
// GET /api/listings/{addr}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr := pathParam(r, "addr")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing listing address")
		return
	}
	rec, err := h.listings.Get(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get listing", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type listListingsResponse struct {
	Listings []domain.ListingRecord `json:"listings"`
	Total    int64                  `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

// List returns stored listings, newest first.
// GET /api/listings?seller=&product_type=&limit=50&offset=0
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ListingFilter{
		ListOpts:     parseListOpts(r),
		SellerPubKey: q.Get("seller"),
		ProductType:  q.Get("product_type"),
	}

	recs, err := h.listings.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "list listings", err)
		return
	}
	total, err := h.listings.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "count listings", err)
		return
	}
	if recs == nil {
		recs = []domain.ListingRecord{}
	}
	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: recs,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}
