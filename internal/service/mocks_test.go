package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

type MockListingStore struct {
	mock.Mock
}

func (m *MockListingStore) Upsert(ctx context.Context, rec domain.ListingRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockListingStore) UpsertBatch(ctx context.Context, recs []domain.ListingRecord) error {
	return m.Called(ctx, recs).Error(0)
}

func (m *MockListingStore) GetByAddr(ctx context.Context, addr string) (domain.ListingRecord, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(domain.ListingRecord), args.Error(1)
}

func (m *MockListingStore) List(ctx context.Context, filter domain.ListingFilter) ([]domain.ListingRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ListingRecord), args.Error(1)
}

func (m *MockListingStore) Delete(ctx context.Context, addr string) error {
	return m.Called(ctx, addr).Error(0)
}

func (m *MockListingStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockListingCache struct {
	mock.Mock
}

func (m *MockListingCache) Set(ctx context.Context, rec domain.ListingRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockListingCache) Get(ctx context.Context, addr string) (domain.ListingRecord, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(domain.ListingRecord), args.Error(1)
}

func (m *MockListingCache) Invalidate(ctx context.Context, addr string) error {
	return m.Called(ctx, addr).Error(0)
}

type MockTradeMessageStore struct {
	mock.Mock
}

func (m *MockTradeMessageStore) Insert(ctx context.Context, msg domain.TradeMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockTradeMessageStore) ListByOrder(ctx context.Context, orderID string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	args := m.Called(ctx, orderID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TradeMessage), args.Error(1)
}

func (m *MockTradeMessageStore) ListByListing(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.TradeMessage, error) {
	args := m.Called(ctx, addr, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TradeMessage), args.Error(1)
}

func (m *MockTradeMessageStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeMessage, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TradeMessage), args.Error(1)
}

const testAddr = "30402:abcdef:listing-1"

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
