package trade

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown trade message type")
	ErrUnknownStage       = errors.New("unknown trade listing stage")
	ErrInvalidAddress     = errors.New("invalid listing address format")
	ErrKindMismatch       = errors.New("event kind does not match message type")
	ErrUnknownDomain      = errors.New("unknown trade envelope domain")
)

// EnvelopeErrorCode enumerates envelope validation failures.
type EnvelopeErrorCode int

const (
	EnvelopeInvalidVersion EnvelopeErrorCode = iota + 1
	EnvelopeMissingListingAddr
	EnvelopeMissingOrderID
)

type EnvelopeError struct {
	Code     EnvelopeErrorCode
	Expected uint16
	Got      uint16
}

func (e *EnvelopeError) Error() string {
	switch e.Code {
	case EnvelopeInvalidVersion:
		return fmt.Sprintf("invalid envelope version: expected %d, got %d", e.Expected, e.Got)
	case EnvelopeMissingListingAddr:
		return "missing listing_addr"
	case EnvelopeMissingOrderID:
		return "missing order_id for order-scoped message"
	}
	return fmt.Sprintf("envelope error %d", e.Code)
}

func (e *EnvelopeError) Is(target error) bool {
	t, ok := target.(*EnvelopeError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidVersion     = &EnvelopeError{Code: EnvelopeInvalidVersion}
	ErrMissingListingAddr = &EnvelopeError{Code: EnvelopeMissingListingAddr}
	ErrMissingOrderID     = &EnvelopeError{Code: EnvelopeMissingOrderID}
)

// ChainError reports a malformed or missing e_root/e_prev/d chain tag.
type ChainError struct {
	Missing bool
	Tag     string
}

func (e *ChainError) Error() string {
	if e.Missing {
		return "missing chain tag: " + e.Tag
	}
	return "invalid tag: " + e.Tag
}

func (e *ChainError) Is(target error) bool {
	t, ok := target.(*ChainError)
	return ok && t.Missing == e.Missing && (t.Tag == "" || t.Tag == e.Tag)
}

var (
	ErrMissingChainTag = &ChainError{Missing: true}
	ErrInvalidChainTag = &ChainError{}
)

func MissingChainTag(tag string) *ChainError { return &ChainError{Missing: true, Tag: tag} }
func InvalidChainTag(tag string) *ChainError { return &ChainError{Tag: tag} }

var errConveyanceProvider = errors.New("trade: third_party conveyance needs provider")
