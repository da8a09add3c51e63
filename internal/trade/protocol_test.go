package trade

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindClassification(t *testing.T) {
	for _, k := range TradeKinds {
		assert.True(t, IsTradeKind(k), k)
		assert.NotEqual(t, IsRequestKind(k), IsResultKind(k), k)
	}
	assert.False(t, IsTradeKind(30402))
	assert.False(t, IsTradeKind(5331))

	res, ok := ResultKindForRequest(KindOrderRequest)
	require.True(t, ok)
	assert.Equal(t, KindOrderResult, res)

	_, ok = ResultKindForRequest(KindCancelRequest)
	assert.False(t, ok)

	req, ok := RequestKindForResult(KindAnswerResult)
	require.True(t, ok)
	assert.Equal(t, KindQuestionRequest, req)

	_, ok = RequestKindForResult(KindReceiptRequest)
	assert.False(t, ok)
}

func TestMessageTypes(t *testing.T) {
	for _, mt := range MessageTypes {
		got, err := ParseMessageType(string(mt))
		require.NoError(t, err)
		assert.Equal(t, mt, got)
		assert.True(t, IsTradeKind(mt.Kind()), mt)
	}

	_, err := ParseMessageType("order_teleport")
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	assert.Equal(t, KindOrderRevisionResult, MsgOrderRevisionAccept.Kind())
	assert.Equal(t, KindOrderRevisionResult, MsgOrderRevisionDecline.Kind())
	assert.True(t, MsgQuestion.IsRequest())
	assert.True(t, MsgAnswer.IsResult())
	assert.False(t, MsgListingValidateRequest.RequiresOrderID())
	assert.False(t, MsgListingValidateResult.RequiresOrderID())
	assert.True(t, MsgReceipt.RequiresOrderID())

	var mt MessageType
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &mt))
	require.NoError(t, json.Unmarshal([]byte(`"discount_offer"`), &mt))
	assert.Equal(t, MsgDiscountOffer, mt)
}

func TestStageCatalog(t *testing.T) {
	tests := []struct {
		stage   Stage
		name    string
		request int
	}{
		{StageOrder, "order", 5322},
		{StageAccept, "accept", 5331},
		{StageConveyance, "conveyance", 5332},
		{StageInvoice, "invoice", 5333},
		{StagePayment, "payment", 5334},
		{StageFulfillment, "fulfillment", 5329},
		{StageReceipt, "receipt", 5330},
		{StageCancel, "cancel", 5328},
		{StageRefund, "refund", 5335},
	}
	require.Len(t, Stages(), len(tests))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.request, tt.stage.RequestKind())
			assert.Equal(t, tt.request+1000, tt.stage.ResultKind())

			parsed, err := ParseStage(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.stage, parsed)

			back, ok := StageFromRequestKind(tt.request)
			require.True(t, ok)
			assert.Equal(t, tt.stage, back)

			back, ok = StageFromResultKind(tt.request + 1000)
			require.True(t, ok)
			assert.Equal(t, tt.stage, back)
		})
	}

	_, err := ParseStage("haggle")
	assert.ErrorIs(t, err, ErrUnknownStage)
	_, ok := StageFromRequestKind(5321)
	assert.False(t, ok)
	_, ok = StageFromResultKind(6321)
	assert.False(t, ok)
}

func TestStageMarkers(t *testing.T) {
	assert.Equal(t, []string{MarkerListing, MarkerPayload}, StageOrder.RequiredMarkers())
	assert.Equal(t, []string{MarkerInvoiceResult, MarkerProof}, StagePayment.RequiredMarkers())
	assert.Equal(t, MarkerRefundResult, StageRefund.ResultMarker())
	assert.Equal(t, []string{MarkerProof}, StagePayment.MissingMarkers([]string{MarkerInvoiceResult}))
	assert.Empty(t, StageOrder.MissingMarkers([]string{MarkerPayload, MarkerListing}))

	markers := StageAccept.RequiredMarkers()
	markers[0] = "tampered"
	assert.Equal(t, MarkerOrderResult, StageAccept.RequiredMarkers()[0])

	b, err := json.Marshal(StageFulfillment)
	require.NoError(t, err)
	assert.Equal(t, `"fulfillment"`, string(b))

	var s Stage
	require.NoError(t, json.Unmarshal([]byte(`"invoice"`), &s))
	assert.Equal(t, StageInvoice, s)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("30402:abcdef:listing-1")
	require.NoError(t, err)
	assert.Equal(t, Address{Kind: 30402, SellerPubKey: "abcdef", ListingID: "listing-1"}, addr)
	assert.Equal(t, "30402:abcdef:listing-1", addr.String())
	assert.Equal(t, addr, ListingAddress("abcdef", "listing-1"))

	for _, bad := range []string{
		"30402:seller:bad id",
		"30402:seller",
		"30402:seller:id:extra",
		"0:seller:id",
		"70000:seller:id",
		"kind:seller:id",
		"30402: :id",
		"30402:seller:",
	} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestPushChainTags(t *testing.T) {
	tags := PushChainTags(nil, "root", "", "order-1")
	assert.Equal(t, [][]string{{"e_root", "root"}, {"d", "order-1"}}, tags)

	tags = PushChainTags([][]string{{"a", "x"}}, "root", "prev", "order-1")
	assert.Equal(t, [][]string{{"a", "x"}, {"e_root", "root"}, {"e_prev", "prev"}, {"d", "order-1"}}, tags)
	assert.NoError(t, ValidateChain(tags))
}

func TestValidateChain(t *testing.T) {
	tests := []struct {
		name string
		tags [][]string
		want error
	}{
		{"no tags", nil, MissingChainTag(TagERoot)},
		{"missing d", [][]string{{"e_root", "r"}}, MissingChainTag(TagD)},
		{"missing root", [][]string{{"d", "o"}}, MissingChainTag(TagERoot)},
		{"blank root", [][]string{{"e_root", " "}, {"d", "o"}}, InvalidChainTag(TagERoot)},
		{"short d", [][]string{{"d"}, {"e_root", "r"}}, InvalidChainTag(TagD)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChain(tt.tags)
			require.Error(t, err)
			assert.Equal(t, tt.want, err)
		})
	}

	assert.ErrorIs(t, ValidateChain(nil), ErrMissingChainTag)
	assert.ErrorIs(t, ValidateChain([][]string{{"e_root", ""}}), ErrInvalidChainTag)
}

func TestIDs(t *testing.T) {
	a, b := NewOrderID(), NewOrderID()
	assert.NotEqual(t, a, b)
	assert.True(t, IsValidID(a))
	assert.True(t, IsValidID(NewRevisionID()))
	assert.False(t, IsValidID("order-1"))
}
