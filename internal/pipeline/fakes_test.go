package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/notify"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func listingEvent(id, dtag string, createdAt int64) nostr.Event {
	return nostr.Event{
		ID:        id,
		PubKey:    "abcdef",
		CreatedAt: createdAt,
		Kind:      nostr.KindListing,
		Tags: [][]string{
			{"d", dtag},
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

type fakeListings struct {
	mu     sync.Mutex
	stored []domain.ListingRecord
	err    error
}

func (f *fakeListings) Validate(ev nostr.Event) (trade.TradeListing, error) {
	return trade.ValidateListingEvent(ev)
}

func (f *fakeListings) StoreBatch(_ context.Context, recs []domain.ListingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, recs...)
	return nil
}

func (f *fakeListings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

type fakeRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeRecorder) RecordMessage(_ context.Context, ev nostr.Event) (domain.TradeMessage, error) {
	if ev.Content == "" {
		return domain.TradeMessage{}, domain.ErrInvalidEnvelope
	}
	f.mu.Lock()
	f.ids = append(f.ids, ev.ID)
	f.mu.Unlock()
	return domain.TradeMessage{EventID: ev.ID, Kind: ev.Kind, ListingAddr: "30402:abcdef:listing-1"}, nil
}

type fakeRejects struct {
	mu      sync.Mutex
	rows    []domain.ListingReject
	deleted time.Time
}

func (f *fakeRejects) Insert(_ context.Context, r domain.ListingReject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, r)
	return nil
}

func (f *fakeRejects) List(context.Context, domain.ListOpts) ([]domain.ListingReject, error) {
	return f.rows, nil
}

func (f *fakeRejects) ListBefore(context.Context, time.Time) ([]domain.ListingReject, error) {
	return f.rows, nil
}

func (f *fakeRejects) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.deleted = before
	return int64(len(f.rows)), nil
}

type fakeSeen struct {
	mu   sync.Mutex
	ids  map[string]bool
	fail bool
}

func (f *fakeSeen) MarkSeen(_ context.Context, id string) (bool, error) {
	if f.fail {
		return false, errors.New("redis down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = map[string]bool{}
	}
	if f.ids[id] {
		return false, nil
	}
	f.ids[id] = true
	return true, nil
}

func (f *fakeSeen) Forget(_ context.Context, ids ...string) error {
	if f.fail {
		return errors.New("redis down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.ids, id)
	}
	return nil
}

func (f *fakeSeen) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

type fakeBus struct {
	mu       sync.Mutex
	channels []string
	streams  []string
}

func (f *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (f *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, stream)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, n.Event)
	return nil
}

type fakeEventArchive struct {
	mu      sync.Mutex
	batches [][]nostr.Event
}

func (f *fakeEventArchive) WriteBatch(_ context.Context, batchID string, at time.Time, events []nostr.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	return "events/" + at.Format("2006/01/02") + "/" + batchID + ".jsonl", nil
}

func (f *fakeEventArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeBlobArchiver struct {
	rejects, messages int64
	before            time.Time
	err               error
}

func (f *fakeBlobArchiver) ArchiveRejects(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.rejects, f.err
}

func (f *fakeBlobArchiver) ArchiveMessages(context.Context, time.Time) (int64, error) {
	return f.messages, nil
}

type fakeEventPruner struct {
	cutoff time.Time
	pruned int64
	err    error
}

func (f *fakeEventPruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.pruned, f.err
}

type fakeLocks struct {
	held     bool
	released int
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() { f.released++ }, nil
}
