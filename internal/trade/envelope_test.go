package trade

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedvm/internal/value"
)

const testAddr = "30402:abcdef:listing-1"

func strp(s string) *string { return &s }

func testOrder() Order {
	return Order{
		OrderID:      "order-1",
		ListingAddr:  testAddr,
		BuyerPubKey:  "buyer",
		SellerPubKey: "abcdef",
		Items:        []OrderItem{{BinID: "bag", BinCount: 2}},
		Discounts:    []value.DiscountValue{value.PercentOff(value.NewPercent(value.MustDecimal("5")))},
		Status:       OrderRequested,
	}
}

func TestEnvelopeJSON(t *testing.T) {
	env := NewEnvelope(MsgListingValidateRequest, testAddr, "", ListingValidateRequest{})
	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": 1,
		"domain": "trade:listing",
		"type": "listing_validate_request",
		"order_id": null,
		"listing_addr": "30402:abcdef:listing-1",
		"payload": {"listing_event": null}
	}`, string(b))

	var raw RawEnvelope
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, MsgListingValidateRequest, raw.MessageType)
	assert.Empty(t, raw.OrderIDOrEmpty())
	assert.NoError(t, raw.Validate())
}

func TestEnvelopeValidate(t *testing.T) {
	env := NewEnvelope(MsgOrderRequest, testAddr, "order-1", testOrder())
	require.NoError(t, env.Validate())

	bad := env
	bad.Version = 2
	err := bad.Validate()
	assert.ErrorIs(t, err, ErrInvalidVersion)
	assert.EqualError(t, err, "invalid envelope version: expected 1, got 2")

	bad = env
	bad.ListingAddr = "  "
	assert.ErrorIs(t, bad.Validate(), ErrMissingListingAddr)

	bad = env
	bad.OrderID = strp("")
	assert.ErrorIs(t, bad.Validate(), ErrMissingOrderID)

	bad = env
	bad.OrderID = nil
	bad.Version = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidVersion, "version is checked first")
}

func TestDecodePayload(t *testing.T) {
	env := NewEnvelope(MsgOrderRequest, testAddr, "order-1", testOrder())
	b, err := json.Marshal(env)
	require.NoError(t, err)

	var raw RawEnvelope
	require.NoError(t, json.Unmarshal(b, &raw))
	got, err := DecodePayload(raw.MessageType, raw.Payload)
	require.NoError(t, err)
	order, ok := got.(*Order)
	require.True(t, ok)
	assert.Equal(t, []OrderItem{{BinID: "bag", BinCount: 2}}, order.Items)

	_, err = DecodePayload(MessageType("bogus"), raw.Payload)
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	_, err = DecodePayload(MsgDiscountAccept, json.RawMessage(`{"kind":"accept","amount":{}}`))
	assert.Error(t, err)
}

func TestWireRoundTrip(t *testing.T) {
	env := NewEnvelope(MsgOrderRequest, testAddr, "order-1", testOrder())
	parts, err := ToWireParts(env, Chain{RootID: "root", PrevID: "prev"})
	require.NoError(t, err)

	assert.Equal(t, KindOrderRequest, parts.Kind)
	assert.Equal(t, [][]string{
		{"a", testAddr},
		{"e_root", "root"},
		{"e_prev", "prev"},
		{"d", "order-1"},
	}, parts.Tags)
	require.NoError(t, ValidateChain(parts.Tags))

	back, err := EnvelopeFromWire[Order](parts)
	require.NoError(t, err)
	assert.JSONEq(t, mustJSON(t, env), mustJSON(t, back))
}

func TestWireWithoutChain(t *testing.T) {
	env := NewEnvelope(MsgQuestion, testAddr, "order-1", Question{QuestionID: "q-1", QuestionText: "Whole bean?"})
	parts, err := ToWireParts(env, Chain{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", testAddr}, {"d", "order-1"}}, parts.Tags)

	validate := NewEnvelope(MsgListingValidateRequest, testAddr, "", ListingValidateRequest{})
	parts, err = ToWireParts(validate, Chain{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", testAddr}}, parts.Tags)
	assert.Equal(t, KindValidateRequest, parts.Kind)
}

func TestWireRejects(t *testing.T) {
	env := NewEnvelope(MsgOrderRequest, testAddr, "", testOrder())
	_, err := ToWireParts(env, Chain{})
	assert.ErrorIs(t, err, ErrMissingOrderID)

	env = NewEnvelope(MsgOrderRequest, testAddr, "order-1", testOrder())
	parts, err := ToWireParts(env, Chain{})
	require.NoError(t, err)

	wrongKind := parts
	wrongKind.Kind = KindOrderRevisionRequest
	_, err = EnvelopeFromWire[Order](wrongKind)
	assert.ErrorIs(t, err, ErrKindMismatch)

	wrongAddr := parts
	wrongAddr.Tags = [][]string{{"a", "30402:other:listing-2"}, {"d", "order-1"}}
	_, err = EnvelopeFromWire[Order](wrongAddr)
	assert.Error(t, err)

	otherDomain := parts
	otherDomain.Content = strings.Replace(parts.Content, `"domain":"trade:listing"`, `"domain":"trade:auction"`, 1)
	require.NotEqual(t, parts.Content, otherDomain.Content)
	_, err = EnvelopeFromWire[Order](otherDomain)
	assert.ErrorIs(t, err, ErrUnknownDomain)

	garbage := parts
	garbage.Content = "{"
	_, err = EnvelopeFromWire[Order](garbage)
	assert.Error(t, err)
}

func TestOrderRevisionApply(t *testing.T) {
	rev := OrderRevision{
		RevisionID: "rev-1",
		OrderID:    "order-1",
		Changes: []OrderChange{
			{Kind: ChangeBinCount, ItemIndex: 0, BinCount: 4},
			{Kind: ChangeItemAdd, Item: OrderItem{BinID: "sack", BinCount: 1}},
			{Kind: ChangeItemRemove, ItemIndex: 0},
		},
	}
	b, err := json.Marshal(rev)
	require.NoError(t, err)
	var decoded OrderRevision
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, rev, decoded)

	got, err := decoded.ApplyTo(testOrder())
	require.NoError(t, err)
	assert.Equal(t, []OrderItem{{BinID: "sack", BinCount: 1}}, got.Items)
	assert.Equal(t, OrderRevised, got.Status)

	_, err = OrderRevision{Changes: []OrderChange{{Kind: ChangeItemRemove, ItemIndex: 3}}}.ApplyTo(testOrder())
	assert.Error(t, err)

	var c OrderChange
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bin_count","amount":{"item_index":0}}`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"teleport"}`), &c))
}

func TestPayloadUnions(t *testing.T) {
	accept := DiscountDecision{Accepted: true, Value: value.MoneyOff(value.NewMoney(value.MustDecimal("3"), value.USD))}
	b, err := json.Marshal(accept)
	require.NoError(t, err)
	var d DiscountDecision
	require.NoError(t, json.Unmarshal(b, &d))
	assert.True(t, d.Accepted)
	assert.JSONEq(t, mustJSON(t, accept), mustJSON(t, d))

	require.NoError(t, json.Unmarshal([]byte(`{"kind":"decline"}`), &d))
	assert.False(t, d.Accepted)
	assert.Nil(t, d.Reason)

	method := ConveyanceMethod{Kind: ConveyanceThirdParty, Provider: "courier", RefID: strp("T-1")}
	b, err = json.Marshal(method)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"third_party","amount":{"provider":"courier","ref_id":"T-1","notes":null}}`, string(b))
	var m ConveyanceMethod
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, method, m)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"third_party","amount":{}}`), &m))

	proof := PaymentProof{Kind: ProofExternalRef, Provider: "stripe", RefID: "pi_1"}
	b, err = json.Marshal(proof)
	require.NoError(t, err)
	var p PaymentProof
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, proof, p)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"preimage","amount":{}}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"iou","amount":{}}`), &p))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
