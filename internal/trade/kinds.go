// Package trade implements the trade-listing negotiation protocol: listing
// addresses, the versioned message envelope, the stage catalog binding each
// negotiation phase to its request/result event kinds, typed payloads and the
// validator that turns a raw listing event into a complete TradeListing.
package trade

// DVM message kinds. Requests sit in 5321-5330; results are request+1000 for
// the pairs that have one.
const (
	KindValidateRequest          = 5321
	KindValidateResult           = 6321
	KindOrderRequest             = 5322
	KindOrderResult              = 6322
	KindOrderRevisionRequest     = 5323
	KindOrderRevisionResult      = 6323
	KindQuestionRequest          = 5324
	KindAnswerResult             = 6324
	KindDiscountRequest          = 5325
	KindDiscountOfferResult      = 6325
	KindDiscountAcceptRequest    = 5326
	KindDiscountDeclineRequest   = 5327
	KindCancelRequest            = 5328
	KindFulfillmentUpdateRequest = 5329
	KindReceiptRequest           = 5330
)

// TradeKinds lists every DVM message kind, requests before their results.
var TradeKinds = [...]int{
	KindValidateRequest,
	KindValidateResult,
	KindOrderRequest,
	KindOrderResult,
	KindOrderRevisionRequest,
	KindOrderRevisionResult,
	KindQuestionRequest,
	KindAnswerResult,
	KindDiscountRequest,
	KindDiscountOfferResult,
	KindDiscountAcceptRequest,
	KindDiscountDeclineRequest,
	KindCancelRequest,
	KindFulfillmentUpdateRequest,
	KindReceiptRequest,
}

func IsRequestKind(kind int) bool {
	switch kind {
	case KindValidateRequest, KindOrderRequest, KindOrderRevisionRequest, KindQuestionRequest,
		KindDiscountRequest, KindDiscountAcceptRequest, KindDiscountDeclineRequest,
		KindCancelRequest, KindFulfillmentUpdateRequest, KindReceiptRequest:
		return true
	}
	return false
}

func IsResultKind(kind int) bool {
	switch kind {
	case KindValidateResult, KindOrderResult, KindOrderRevisionResult, KindAnswerResult,
		KindDiscountOfferResult:
		return true
	}
	return false
}

func IsTradeKind(kind int) bool { return IsRequestKind(kind) || IsResultKind(kind) }

// ResultKindForRequest returns the result kind paired with a request kind.
// One-way requests (discount accept/decline, cancel, fulfillment update,
// receipt) have none.
func ResultKindForRequest(kind int) (int, bool) {
	switch kind {
	case KindValidateRequest, KindOrderRequest, KindOrderRevisionRequest, KindQuestionRequest,
		KindDiscountRequest:
		return kind + resultKindOffset, true
	}
	return 0, false
}

func RequestKindForResult(kind int) (int, bool) {
	if !IsResultKind(kind) {
		return 0, false
	}
	return kind - resultKindOffset, true
}
