package trade

import (
	"encoding/json"
	"fmt"
)

// MessageType is the envelope "type" discriminator.
type MessageType string

const (
	MsgListingValidateRequest MessageType = "listing_validate_request"
	MsgListingValidateResult  MessageType = "listing_validate_result"
	MsgOrderRequest           MessageType = "order_request"
	MsgOrderResponse          MessageType = "order_response"
	MsgOrderRevision          MessageType = "order_revision"
	MsgOrderRevisionAccept    MessageType = "order_revision_accept"
	MsgOrderRevisionDecline   MessageType = "order_revision_decline"
	MsgQuestion               MessageType = "question"
	MsgAnswer                 MessageType = "answer"
	MsgDiscountRequest        MessageType = "discount_request"
	MsgDiscountOffer          MessageType = "discount_offer"
	MsgDiscountAccept         MessageType = "discount_accept"
	MsgDiscountDecline        MessageType = "discount_decline"
	MsgCancel                 MessageType = "cancel"
	MsgFulfillmentUpdate      MessageType = "fulfillment_update"
	MsgReceipt                MessageType = "receipt"
)

var messageKinds = map[MessageType]int{
	MsgListingValidateRequest: KindValidateRequest,
	MsgListingValidateResult:  KindValidateResult,
	MsgOrderRequest:           KindOrderRequest,
	MsgOrderResponse:          KindOrderResult,
	MsgOrderRevision:          KindOrderRevisionRequest,
	MsgOrderRevisionAccept:    KindOrderRevisionResult,
	MsgOrderRevisionDecline:   KindOrderRevisionResult,
	MsgQuestion:               KindQuestionRequest,
	MsgAnswer:                 KindAnswerResult,
	MsgDiscountRequest:        KindDiscountRequest,
	MsgDiscountOffer:          KindDiscountOfferResult,
	MsgDiscountAccept:         KindDiscountAcceptRequest,
	MsgDiscountDecline:        KindDiscountDeclineRequest,
	MsgCancel:                 KindCancelRequest,
	MsgFulfillmentUpdate:      KindFulfillmentUpdateRequest,
	MsgReceipt:                KindReceiptRequest,
}

// MessageTypes lists every message type in protocol order.
var MessageTypes = [...]MessageType{
	MsgListingValidateRequest,
	MsgListingValidateResult,
	MsgOrderRequest,
	MsgOrderResponse,
	MsgOrderRevision,
	MsgOrderRevisionAccept,
	MsgOrderRevisionDecline,
	MsgQuestion,
	MsgAnswer,
	MsgDiscountRequest,
	MsgDiscountOffer,
	MsgDiscountAccept,
	MsgDiscountDecline,
	MsgCancel,
	MsgFulfillmentUpdate,
	MsgReceipt,
}

// ParseMessageType validates s against the known message types.
func ParseMessageType(s string) (MessageType, error) {
	mt := MessageType(s)
	if _, ok := messageKinds[mt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
	}
	return mt, nil
}

// Kind is the event kind the message travels under. Both revision
// responses share the revision result kind.
func (m MessageType) Kind() int { return messageKinds[m] }

// RequiresOrderID is true for every message scoped to an order, which is
// all of them except listing validation.
func (m MessageType) RequiresOrderID() bool {
	return m != MsgListingValidateRequest && m != MsgListingValidateResult
}

func (m MessageType) IsRequest() bool { return IsRequestKind(m.Kind()) }

func (m MessageType) IsResult() bool { return !m.IsRequest() }

func (m MessageType) String() string { return string(m) }

func (m *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mt, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*m = mt
	return nil
}
