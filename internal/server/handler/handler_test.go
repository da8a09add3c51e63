package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/pipeline"
	"github.com/alanyoungcy/tradedvm/internal/service"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

const testAddr = "30402:abcdef:listing-1"

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func listingEvent() nostr.Event {
	return nostr.Event{
		ID:        "ev-1",
		PubKey:    "abcdef",
		CreatedAt: 1_700_000_000,
		Kind:      nostr.KindListing,
		Tags: [][]string{
			{"d", "listing-1"},
			{"title", "Coffee"},
			{"summary", "Fresh roast"},
			{"category", "coffee"},
			{"quantity", "1", "lb", "", "5"},
			{"price", "20", "USD", "1", "lb"},
			{"status", "active"},
			{"delivery", "pickup"},
			{"location", "Farm"},
		},
	}
}

// memStore is an in-memory domain.ListingStore.
type memStore struct {
	mu   sync.Mutex
	recs map[string]domain.ListingRecord
}

func newMemStore() *memStore { return &memStore{recs: map[string]domain.ListingRecord{}} }

func (s *memStore) Upsert(_ context.Context, rec domain.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Addr] = rec
	return nil
}

func (s *memStore) UpsertBatch(ctx context.Context, recs []domain.ListingRecord) error {
	for _, rec := range recs {
		_ = s.Upsert(ctx, rec)
	}
	return nil
}

func (s *memStore) GetByAddr(_ context.Context, addr string) (domain.ListingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[addr]
	if !ok {
		return domain.ListingRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) List(_ context.Context, filter domain.ListingFilter) ([]domain.ListingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ListingRecord
	for _, rec := range s.recs {
		if filter.SellerPubKey != "" && rec.SellerPubKey != filter.SellerPubKey {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, addr)
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.recs)), nil
}

type fixture struct {
	store    *memStore
	listings *ListingHandler
	trade    *TradeHandler
	svc      *service.ListingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	svc, err := service.NewListingService(store, nil, 16, listing.TagOptions{}, discardLogger())
	require.NoError(t, err)
	return &fixture{
		store:    store,
		svc:      svc,
		listings: NewListingHandler(svc, discardLogger()),
		trade:    NewTradeHandler(service.NewTradeService(svc, nil, discardLogger()), discardLogger()),
	}
}

func (f *fixture) storeListing(t *testing.T) {
	t.Helper()
	ev := listingEvent()
	tl, err := f.svc.Validate(ev)
	require.NoError(t, err)
	_, err = f.svc.Store(context.Background(), tl, ev)
	require.NoError(t, err)
}

func do(h http.HandlerFunc, method, target string, body any, pathValues ...string) *httptest.ResponseRecorder {
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, buf)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestValidateListing(t *testing.T) {
	f := newFixture(t)

	rec := do(f.listings.Validate, http.MethodPost, "/api/listings/validate", listingEvent())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "Coffee", body["listing"].(map[string]any)["title"])

	bad := listingEvent()
	bad.Kind = 1
	rec = do(f.listings.Validate, http.MethodPost, "/api/listings/validate", bad)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.NotContains(t, body, "listing")
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid_kind", errs[0].(map[string]any)["kind"])

	rec = do(f.listings.Validate, http.MethodPost, "/api/listings/validate", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(f.listings.Validate, http.MethodPost, "/api/listings/validate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetListing(t *testing.T) {
	f := newFixture(t)

	rec := do(f.listings.Get, http.MethodGet, "/api/listings/"+testAddr, nil, "addr", testAddr)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(f.listings.Get, http.MethodGet, "/api/listings/nope", nil, "addr", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.storeListing(t)
	rec = do(f.listings.Get, http.MethodGet, "/api/listings/"+testAddr, nil, "addr", testAddr)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, testAddr, body["addr"])
	assert.Equal(t, "ev-1", body["event_id"])
}

func TestListListings(t *testing.T) {
	f := newFixture(t)

	rec := do(f.listings.List, http.MethodGet, "/api/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Empty(t, body["listings"])
	assert.Equal(t, 50.0, body["limit"])

	f.storeListing(t)
	rec = do(f.listings.List, http.MethodGet, "/api/listings?seller=abcdef&limit=900&offset=-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Len(t, body["listings"], 1)
	assert.Equal(t, 1.0, body["total"])
	assert.Equal(t, 500.0, body["limit"])
	assert.Equal(t, 0.0, body["offset"])
}

func TestListingTagsAndWire(t *testing.T) {
	f := newFixture(t)
	tl, err := trade.ValidateListingEvent(listingEvent())
	require.NoError(t, err)

	rec := do(f.listings.Tags, http.MethodPost, "/api/listings/tags", tl.Listing)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tags struct {
		Tags [][]string `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tags))
	assert.Contains(t, tags.Tags, []string{"d", "listing-1"})

	rec = do(f.listings.Wire, http.MethodPost, "/api/listings/wire", tl.Listing)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var parts nostr.WireParts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parts))
	assert.Equal(t, nostr.KindListing, parts.Kind)
	assert.NotEmpty(t, parts.Content)

	rec = do(f.listings.Tags, http.MethodPost, "/api/listings/tags", "[]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildEnvelope(t *testing.T) {
	f := newFixture(t)

	rec := do(f.trade.BuildEnvelope, http.MethodPost, "/api/trade/envelopes", map[string]any{
		"type":         "order_request",
		"listing_addr": testAddr,
		"payload": map[string]any{
			"buyer_pubkey":  "buyer",
			"seller_pubkey": "abcdef",
			"items":         []map[string]any{{"bin_id": "0", "bin_count": 2}},
			"status":        "requested",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var built struct {
		Wire nostr.WireParts `json:"wire"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &built))
	assert.Equal(t, trade.KindOrderRequest, built.Wire.Kind)

	rec = do(f.trade.BuildEnvelope, http.MethodPost, "/api/trade/envelopes", map[string]any{
		"type":         "order_teleport",
		"listing_addr": testAddr,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(f.trade.BuildEnvelope, http.MethodPost, "/api/trade/envelopes", map[string]any{
		"type":         "question",
		"listing_addr": "not-an-address",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStages(t *testing.T) {
	f := newFixture(t)
	rec := do(f.trade.Stages, http.MethodGet, "/api/trade/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stages []service.StageInfo `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Stages)
	for _, st := range body.Stages {
		assert.Equal(t, st.RequestKind+1000, st.ResultKind)
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	items := []map[string]any{{"bin_id": "0", "bin_count": 1}}

	rec := do(f.trade.Quote, http.MethodPost, "/api/trade/quote", map[string]any{"listing_addr": testAddr, "items": items})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "listing_event_not_found", decode(t, rec)["code"])

	f.storeListing(t)
	rec = do(f.trade.Quote, http.MethodPost, "/api/trade/quote", map[string]any{"listing_addr": testAddr, "items": items})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, testAddr, body["listing_addr"])
	assert.Len(t, body["items"], 1)

	rec = do(f.trade.Quote, http.MethodPost, "/api/trade/quote", map[string]any{"listing_addr": testAddr})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesWithoutLog(t *testing.T) {
	f := newFixture(t)
	rec := do(f.trade.OrderMessages, http.MethodGet, "/api/trade/orders/o-1/messages", nil, "id", "o-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(f.trade.ListingMessages, http.MethodGet, "/api/listings/"+testAddr+"/messages", nil, "addr", testAddr)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(map[string]CheckFunc{
		"postgres": func(context.Context) error { return nil },
	}, discardLogger())
	rec := do(h.HealthCheck, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	h = NewHealthHandler(map[string]CheckFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, discardLogger())
	rec = do(h.HealthCheck, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["redis"])
}

func TestStatus(t *testing.T) {
	h := NewStatusHandler("full", time.Now().Add(-time.Minute), func() []string { return []string{"wss://relay.test"} })
	rec := do(h.GetStatus, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "full", body["mode"])
	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), 59.0)
	assert.Equal(t, []any{"wss://relay.test"}, body["relays_connected"])
}

type fakeStats struct{}

func (fakeStats) Stats() pipeline.Stats { return pipeline.Stats{Received: 5, Stored: 3} }

type fakeArchiveRunner struct {
	report pipeline.ArchiveReport
	err    error
}

func (f fakeArchiveRunner) Run(context.Context) (pipeline.ArchiveReport, error) { return f.report, f.err }

func TestPipelineHandler(t *testing.T) {
	h := NewPipelineHandler(nil, nil, discardLogger())
	assert.Equal(t, http.StatusServiceUnavailable, do(h.GetStats, http.MethodGet, "/api/pipeline/stats", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h.TriggerArchive, http.MethodPost, "/api/pipeline/archive", nil).Code)

	h = NewPipelineHandler(fakeStats{}, fakeArchiveRunner{report: pipeline.ArchiveReport{Rejects: 2}}, discardLogger())
	rec := do(h.GetStats, http.MethodGet, "/api/pipeline/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5.0, decode(t, rec)["received"])

	rec = do(h.TriggerArchive, http.MethodPost, "/api/pipeline/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode(t, rec)["rejects"])

	h = NewPipelineHandler(nil, fakeArchiveRunner{report: pipeline.ArchiveReport{Skipped: true}}, discardLogger())
	assert.Equal(t, http.StatusConflict, do(h.TriggerArchive, http.MethodPost, "/api/pipeline/archive", nil).Code)

	h = NewPipelineHandler(nil, fakeArchiveRunner{err: errors.New("s3 down")}, discardLogger())
	rec = do(h.TriggerArchive, http.MethodPost, "/api/pipeline/archive", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to run archive", decode(t, rec)["error"])
}

type fakeBatches struct {
	day time.Time
}

func (f *fakeBatches) ListDay(_ context.Context, at time.Time) ([]domain.BlobInfo, error) {
	f.day = at
	return []domain.BlobInfo{{Path: "events/2026/03/10/b1.jsonl", Size: 42}}, nil
}

func (f *fakeBatches) ReadBatch(_ context.Context, path string) ([]nostr.Event, error) {
	if path != "events/2026/03/10/b1.jsonl" {
		return nil, domain.ErrNotFound
	}
	return []nostr.Event{listingEvent()}, nil
}

func TestPipelineBatches(t *testing.T) {
	h := NewPipelineHandler(nil, nil, discardLogger())
	assert.Equal(t, http.StatusServiceUnavailable, do(h.ListBatches, http.MethodGet, "/api/pipeline/batches", nil).Code)

	batches := &fakeBatches{}
	h = h.WithBatchReader(batches)

	rec := do(h.ListBatches, http.MethodGet, "/api/pipeline/batches?date=2026-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2026-03-10", body["date"])
	assert.Equal(t, "events/2026/03/10/b1.jsonl", body["batches"].([]any)[0].(map[string]any)["path"])
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), batches.day)

	assert.Equal(t, http.StatusBadRequest, do(h.ListBatches, http.MethodGet, "/api/pipeline/batches?date=10-03-2026", nil).Code)

	rec = do(h.GetBatch, http.MethodGet, "/api/pipeline/batches/events/2026/03/10/b1.jsonl", nil, "path", "events/2026/03/10/b1.jsonl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["events"], 1)

	rec = do(h.GetBatch, http.MethodGet, "/api/pipeline/batches/missing", nil, "path", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
