package trade

import (
	"encoding/json"
	"fmt"
)

// resultKindOffset separates every request kind from its result kind.
const resultKindOffset = 1000

// Stage is one phase of a buyer/seller negotiation.
type Stage int

const (
	StageOrder Stage = iota
	StageAccept
	StageConveyance
	StageInvoice
	StagePayment
	StageFulfillment
	StageReceipt
	StageCancel
	StageRefund
	stageCount
)

// Markers name the inputs a stage request must reference.
const (
	MarkerListing           = "listing"
	MarkerPayload           = "payload"
	MarkerPrevious          = "previous"
	MarkerProof             = "proof"
	MarkerOrderResult       = "order_result"
	MarkerAcceptResult      = "accept_result"
	MarkerConveyanceResult  = "conveyance_result"
	MarkerInvoiceResult     = "invoice_result"
	MarkerPaymentResult     = "payment_result"
	MarkerFulfillmentResult = "fulfillment_result"
	MarkerReceiptResult     = "receipt_result"
	MarkerCancelResult      = "cancel_result"
	MarkerRefundResult      = "refund_result"
)

// Request kinds of the stages that have no DVM message of their own.
const (
	KindAcceptRequest     = 5331
	KindConveyanceRequest = 5332
	KindInvoiceRequest    = 5333
	KindPaymentRequest    = 5334
	KindRefundRequest     = 5335
)

type stageSpec struct {
	name         string
	requestKind  int
	requiredIn   []string
	resultMarker string
}

// stageTable is indexed by Stage. Result kinds are derived, never stored.
var stageTable = [stageCount]stageSpec{
	StageOrder:       {"order", KindOrderRequest, []string{MarkerListing, MarkerPayload}, MarkerOrderResult},
	StageAccept:      {"accept", KindAcceptRequest, []string{MarkerOrderResult, MarkerListing}, MarkerAcceptResult},
	StageConveyance:  {"conveyance", KindConveyanceRequest, []string{MarkerAcceptResult, MarkerPayload}, MarkerConveyanceResult},
	StageInvoice:     {"invoice", KindInvoiceRequest, []string{MarkerAcceptResult}, MarkerInvoiceResult},
	StagePayment:     {"payment", KindPaymentRequest, []string{MarkerInvoiceResult, MarkerProof}, MarkerPaymentResult},
	StageFulfillment: {"fulfillment", KindFulfillmentUpdateRequest, []string{MarkerPaymentResult}, MarkerFulfillmentResult},
	StageReceipt:     {"receipt", KindReceiptRequest, []string{MarkerFulfillmentResult}, MarkerReceiptResult},
	StageCancel:      {"cancel", KindCancelRequest, []string{MarkerOrderResult, MarkerPrevious}, MarkerCancelResult},
	StageRefund:      {"refund", KindRefundRequest, []string{MarkerPaymentResult, MarkerPayload}, MarkerRefundResult},
}

func init() {
	for _, s := range Stages() {
		back, ok := StageFromRequestKind(s.RequestKind())
		if !ok || back != s {
			panic(fmt.Sprintf("trade: stage %s is not reachable from request kind %d", s, s.RequestKind()))
		}
		back, ok = StageFromResultKind(s.ResultKind())
		if !ok || back != s || s.ResultKind()-s.RequestKind() != resultKindOffset {
			panic(fmt.Sprintf("trade: stage %s is not reachable from result kind %d", s, s.ResultKind()))
		}
	}
}

// Stages returns every stage in catalog order.
func Stages() []Stage {
	out := make([]Stage, stageCount)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

func (s Stage) valid() bool { return s >= 0 && s < stageCount }

func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageTable[s].name
}

// ParseStage accepts the lowercase stage name.
func ParseStage(name string) (Stage, error) {
	for i := range stageTable {
		if stageTable[i].name == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

func (s Stage) RequestKind() int { return stageTable[s].requestKind }

func (s Stage) ResultKind() int { return stageTable[s].requestKind + resultKindOffset }

// RequiredMarkers lists, in order, what a request for s must reference.
// The returned slice is a copy.
func (s Stage) RequiredMarkers() []string {
	return append([]string(nil), stageTable[s].requiredIn...)
}

// ResultMarker names the result of s when it is referenced by a later stage.
func (s Stage) ResultMarker() string { return stageTable[s].resultMarker }

func StageFromRequestKind(kind int) (Stage, bool) {
	switch kind {
	case KindOrderRequest:
		return StageOrder, true
	case KindAcceptRequest:
		return StageAccept, true
	case KindConveyanceRequest:
		return StageConveyance, true
	case KindInvoiceRequest:
		return StageInvoice, true
	case KindPaymentRequest:
		return StagePayment, true
	case KindFulfillmentUpdateRequest:
		return StageFulfillment, true
	case KindReceiptRequest:
		return StageReceipt, true
	case KindCancelRequest:
		return StageCancel, true
	case KindRefundRequest:
		return StageRefund, true
	}
	return 0, false
}

func StageFromResultKind(kind int) (Stage, bool) {
	return StageFromRequestKind(kind - resultKindOffset)
}

// MissingMarkers returns the required markers of s absent from have.
func (s Stage) MissingMarkers(have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, m := range have {
		present[m] = struct{}{}
	}
	var missing []string
	for _, m := range stageTable[s].requiredIn {
		if _, ok := present[m]; !ok {
			missing = append(missing, m)
		}
	}
	return missing
}

func (s Stage) MarshalJSON() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStage, int(s))
	}
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
