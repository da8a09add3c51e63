package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/trade"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

type staticResolver struct {
	tl  trade.TradeListing
	err error
}

func (r staticResolver) ResolveListing(context.Context, string) (trade.TradeListing, error) {
	return r.tl, r.err
}

func resolvedListing(t *testing.T) trade.TradeListing {
	t.Helper()
	tl, err := trade.ValidateListingEvent(listingEvent())
	require.NoError(t, err)
	return tl
}

func TestBuildEnvelopeOrderGetsID(t *testing.T) {
	svc := NewTradeService(nil, nil, discardLogger())

	built, err := svc.BuildEnvelope(EnvelopeRequest{
		Type:        trade.MsgOrderRequest,
		ListingAddr: testAddr,
		Payload:     json.RawMessage(`{"buyer_pubkey":"buyer","seller_pubkey":"abcdef","items":[{"bin_id":"0","bin_count":2}],"status":"requested"}`),
	})
	require.NoError(t, err)

	orderID := built.Envelope.OrderIDOrEmpty()
	assert.True(t, trade.IsValidID(orderID))
	assert.Equal(t, trade.KindOrderRequest, built.Wire.Kind)
	assert.Equal(t, [][]string{{"a", testAddr}, {"d", orderID}}, built.Wire.Tags)

	var order trade.Order
	require.NoError(t, json.Unmarshal(built.Envelope.Payload, &order))
	assert.Equal(t, orderID, order.OrderID)
	assert.Equal(t, testAddr, order.ListingAddr)

	back, err := trade.EnvelopeFromWire[trade.Order](built.Wire)
	require.NoError(t, err)
	assert.Equal(t, orderID, back.Payload.OrderID)
}

func TestBuildEnvelopeWithChain(t *testing.T) {
	svc := NewTradeService(nil, nil, discardLogger())
	built, err := svc.BuildEnvelope(EnvelopeRequest{
		Type:        trade.MsgQuestion,
		ListingAddr: testAddr,
		OrderID:     "order-1",
		Payload:     json.RawMessage(`{"question_id":"q-1","question_text":"Whole bean?"}`),
		Chain:       trade.Chain{RootID: "root", PrevID: "prev"},
	})
	require.NoError(t, err)
	assert.NoError(t, trade.ValidateChain(built.Wire.Tags))
	assert.Contains(t, built.Wire.Tags, []string{"e_prev", "prev"})
}

func TestBuildEnvelopeRejects(t *testing.T) {
	svc := NewTradeService(nil, nil, discardLogger())

	_, err := svc.BuildEnvelope(EnvelopeRequest{Type: "order_teleport", ListingAddr: testAddr})
	assert.ErrorIs(t, err, trade.ErrUnknownMessageType)

	_, err = svc.BuildEnvelope(EnvelopeRequest{Type: trade.MsgQuestion, ListingAddr: "nope"})
	assert.ErrorIs(t, err, trade.ErrInvalidAddress)

	_, err = svc.BuildEnvelope(EnvelopeRequest{Type: trade.MsgQuestion, ListingAddr: testAddr, Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, trade.ErrMissingOrderID)

	_, err = svc.BuildEnvelope(EnvelopeRequest{Type: trade.MsgDiscountAccept, ListingAddr: testAddr, OrderID: "o", Payload: json.RawMessage(`[`)})
	assert.Error(t, err)

	built, err := svc.BuildEnvelope(EnvelopeRequest{Type: trade.MsgListingValidateRequest, ListingAddr: testAddr})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", testAddr}}, built.Wire.Tags)
}

func TestQuote(t *testing.T) {
	svc := NewTradeService(staticResolver{tl: resolvedListing(t)}, nil, discardLogger())

	q, err := svc.Quote(context.Background(), testAddr, []trade.OrderItem{
		{BinID: "0", BinCount: 2},
		{BinID: "0", BinCount: 1},
	})
	require.NoError(t, err)
	require.Len(t, q.Items, 2)
	assert.Equal(t, value.USD, q.Total.Currency)
	assert.True(t, value.MustDecimal("60").Equal(q.Subtotal.Amount), q.Subtotal.String())
	assert.True(t, value.MustDecimal("60").Equal(q.Total.Amount), q.Total.String())
	assert.True(t, q.Discount.Amount.IsZero())

	_, err = svc.Quote(context.Background(), testAddr, []trade.OrderItem{{BinID: "9", BinCount: 1}})
	assert.ErrorIs(t, err, trade.ErrUnknownBin)

	_, err = svc.Quote(context.Background(), testAddr, nil)
	assert.Error(t, err)

	missing := NewTradeService(staticResolver{err: trade.ErrListingEventNotFound}, nil, discardLogger())
	_, err = missing.Quote(context.Background(), testAddr, []trade.OrderItem{{BinID: "0", BinCount: 1}})
	assert.ErrorIs(t, err, trade.ErrListingEventNotFound)
}

func TestStages(t *testing.T) {
	stages := NewTradeService(nil, nil, discardLogger()).Stages()
	require.Len(t, stages, len(trade.Stages()))
	assert.Equal(t, trade.StageOrder, stages[0].Stage)
	assert.Equal(t, 5322, stages[0].RequestKind)
	assert.Equal(t, 6322, stages[0].ResultKind)

	b, err := json.Marshal(stages[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"stage":"order"`)
}

func wireEvent(t *testing.T, svc *TradeService) nostr.Event {
	t.Helper()
	built, err := svc.BuildEnvelope(EnvelopeRequest{
		Type:        trade.MsgQuestion,
		ListingAddr: testAddr,
		OrderID:     "order-1",
		Payload:     json.RawMessage(`{"question_id":"q-1","question_text":"Whole bean?"}`),
	})
	require.NoError(t, err)
	return nostr.Event{
		ID:        "msg-1",
		PubKey:    "buyer",
		CreatedAt: 1_700_000_100,
		Kind:      built.Wire.Kind,
		Tags:      built.Wire.Tags,
		Content:   built.Wire.Content,
	}
}

func TestRecordMessage(t *testing.T) {
	messages := new(MockTradeMessageStore)
	svc := NewTradeService(nil, messages, discardLogger())
	ctx := context.Background()
	ev := wireEvent(t, svc)

	messages.On("Insert", ctx, mock.MatchedBy(func(m domain.TradeMessage) bool {
		return m.EventID == "msg-1" && m.OrderID == "order-1" && m.MessageType == "question" && m.ListingAddr == testAddr
	})).Return(nil).Once()

	msg, err := svc.RecordMessage(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, trade.KindQuestionRequest, msg.Kind)
	assert.Equal(t, int64(1_700_000_100), msg.CreatedAt.Unix())

	bad := ev
	bad.Kind = trade.KindOrderRequest
	_, err = svc.RecordMessage(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidEnvelope)
	assert.ErrorIs(t, err, trade.ErrKindMismatch)

	messages.On("Insert", ctx, mock.Anything).Return(errors.New("db down")).Once()
	_, err = svc.RecordMessage(ctx, ev)
	assert.Error(t, err)

	messages.AssertExpectations(t)
}

func TestMessageLog(t *testing.T) {
	messages := new(MockTradeMessageStore)
	svc := NewTradeService(nil, messages, discardLogger())
	ctx := context.Background()
	opts := domain.ListOpts{Limit: 5}

	messages.On("ListByOrder", ctx, "order-1", opts).Return([]domain.TradeMessage{{EventID: "a"}}, nil)
	messages.On("ListByListing", ctx, testAddr, opts).Return(nil, errors.New("boom"))

	got, err := svc.OrderMessages(ctx, "order-1", opts)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.ListingMessages(ctx, testAddr, opts)
	assert.Error(t, err)

	_, err = NewTradeService(nil, nil, discardLogger()).OrderMessages(ctx, "order-1", opts)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
