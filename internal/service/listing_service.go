package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

const defaultMemoSize = 4096

// ListingService validates listing events and serves stored listings. Valid
// listings are memoised in-process by event id; lookups by address go
// through the redis cache before postgres.
type ListingService struct {
	listings domain.ListingStore
	cache    domain.ListingCache
	memo     *lru.Cache[string, trade.TradeListing]
	tagOpts  listing.TagOptions
	now      func() time.Time
	logger   *slog.Logger
}

// NewListingService creates a ListingService. cache may be nil.
func NewListingService(
	listings domain.ListingStore,
	cache domain.ListingCache,
	memoSize int,
	tagOpts listing.TagOptions,
	logger *slog.Logger,
) (*ListingService, error) {
	if memoSize <= 0 {
		memoSize = defaultMemoSize
	}
	memo, err := lru.New[string, trade.TradeListing](memoSize)
	if err != nil {
		return nil, fmt.Errorf("listing_service: memo: %w", err)
	}
	return &ListingService{
		listings: listings,
		cache:    cache,
		memo:     memo,
		tagOpts:  tagOpts,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "listing_service")),
	}, nil
}

// Validate decodes and validates a listing event. Successful results are
// remembered by event id, so replays of the same event skip the decode.
func (s *ListingService) Validate(ev nostr.Event) (trade.TradeListing, error) {
	if ev.ID != "" {
		if tl, ok := s.memo.Get(ev.ID); ok {
			return tl, nil
		}
	}
	tl, err := trade.ValidateListingEvent(ev)
	if err != nil {
		return trade.TradeListing{}, err
	}
	if ev.ID != "" {
		s.memo.Add(ev.ID, tl)
	}
	return tl, nil
}

// ValidateResult is Validate reported as a listing_validate_result payload.
func (s *ListingService) ValidateResult(ev nostr.Event) (trade.ListingValidateResult, *trade.TradeListing) {
	tl, err := s.Validate(ev)
	if err != nil {
		var ve *trade.ValidationError
		if !errors.As(err, &ve) {
			ve = &trade.ValidationError{Code: trade.CodeParseError, Err: err}
		}
		return trade.ListingValidateResult{Valid: false, Errors: []*trade.ValidationError{ve}}, nil
	}
	return trade.ListingValidateResult{Valid: true, Errors: []*trade.ValidationError{}}, &tl
}

// Store persists a validated listing and refreshes the cache. An older
// event for an address already stored is ignored by the store.
func (s *ListingService) Store(ctx context.Context, tl trade.TradeListing, ev nostr.Event) (domain.ListingRecord, error) {
	rec := domain.NewListingRecord(tl, ev, s.now())
	if err := s.listings.Upsert(ctx, rec); err != nil {
		return domain.ListingRecord{}, fmt.Errorf("listing_service: upsert %s: %w", rec.Addr, err)
	}
	s.refreshCache(ctx, rec.Addr)
	return rec, nil
}

// StoreBatch persists many validated records in one round trip.
func (s *ListingService) StoreBatch(ctx context.Context, recs []domain.ListingRecord) error {
	if len(recs) == 0 {
		return nil
	}
	if err := s.listings.UpsertBatch(ctx, recs); err != nil {
		return fmt.Errorf("listing_service: upsert batch: %w", err)
	}
	for _, rec := range recs {
		s.refreshCache(ctx, rec.Addr)
	}
	return nil
}

// refreshCache drops the cached entry; the next read back-fills it with
// whichever version won the upsert.
func (s *ListingService) refreshCache(ctx context.Context, addr string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, addr); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns the stored listing at addr.
func (s *ListingService) Get(ctx context.Context, addr string) (domain.ListingRecord, error) {
	parsed, err := trade.ParseAddress(addr)
	if err != nil {
		return domain.ListingRecord{}, fmt.Errorf("listing_service: get %q: %w", addr, err)
	}
	addr = parsed.String()

	if s.cache != nil {
		if rec, err := s.cache.Get(ctx, addr); err == nil {
			return rec, nil
		}
	}

	rec, err := s.listings.GetByAddr(ctx, addr)
	if err != nil {
		return domain.ListingRecord{}, fmt.Errorf("listing_service: get %q: %w", addr, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("addr", addr),
				slog.String("error", err.Error()),
			)
		}
	}
	return rec, nil
}

// ResolveListing returns the validated listing at addr, reporting failures
// as listing_event_not_found or listing_event_fetch_failed.
func (s *ListingService) ResolveListing(ctx context.Context, addr string) (trade.TradeListing, error) {
	rec, err := s.Get(ctx, addr)
	switch {
	case err == nil:
		return rec.Listing, nil
	case errors.Is(err, domain.ErrNotFound):
		return trade.TradeListing{}, &trade.ValidationError{Code: trade.CodeListingEventNotFound, ListingAddr: addr, Err: err}
	case errors.Is(err, trade.ErrInvalidAddress):
		return trade.TradeListing{}, err
	default:
		return trade.TradeListing{}, &trade.ValidationError{Code: trade.CodeListingEventFetchFailed, ListingAddr: addr, Err: err}
	}
}

// List returns stored listings, newest first.
func (s *ListingService) List(ctx context.Context, filter domain.ListingFilter) ([]domain.ListingRecord, error) {
	recs, err := s.listings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored listings.
func (s *ListingService) Count(ctx context.Context) (int64, error) {
	n, err := s.listings.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing_service: count: %w", err)
	}
	return n, nil
}

// Delete removes the listing at addr, e.g. after a seller's deletion event.
func (s *ListingService) Delete(ctx context.Context, addr string) error {
	if err := s.listings.Delete(ctx, addr); err != nil {
		return fmt.Errorf("listing_service: delete %q: %w", addr, err)
	}
	s.refreshCache(ctx, addr)
	return nil
}

// Tags encodes l with the configured codec options.
func (s *ListingService) Tags(l listing.Listing) ([][]string, error) {
	tags, err := listing.TagsWithOptions(l, s.tagOpts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: tags: %w", err)
	}
	return tags, nil
}

// WireParts renders l as an unsigned kind 30402 event.
func (s *ListingService) WireParts(l listing.Listing) (nostr.WireParts, error) {
	parts, err := listing.ToWireParts(l)
	if err != nil {
		return nostr.WireParts{}, fmt.Errorf("listing_service: wire parts: %w", err)
	}
	return parts, nil
}
