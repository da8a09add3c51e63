package listing

import (
	"fmt"
)

// ParseErrorKind classifies a decode failure.
type ParseErrorKind int

const (
	MissingTagKind ParseErrorKind = iota + 1
	InvalidTagKind
	InvalidNumberKind
	InvalidUnitKind
	InvalidCurrencyKind
	InvalidJSONKind
	InvalidDiscountKind
)

// ParseError is returned by every decode path. Field names the tag key,
// numeric field or discount kind involved; it is empty for unit and currency
// failures.
type ParseError struct {
	Kind  ParseErrorKind
	Field string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case MissingTagKind:
		return "missing required tag: " + e.Field
	case InvalidTagKind:
		return "invalid tag: " + e.Field
	case InvalidNumberKind:
		return "invalid number: " + e.Field
	case InvalidUnitKind:
		return "invalid unit"
	case InvalidCurrencyKind:
		return "invalid currency"
	case InvalidJSONKind:
		return "invalid json: " + e.Field
	case InvalidDiscountKind:
		return "invalid discount data for " + e.Field
	}
	return fmt.Sprintf("listing parse error %d", e.Kind)
}

// Is matches another *ParseError of the same kind. A target with an empty
// Field matches any field.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

var (
	ErrMissingTag      = &ParseError{Kind: MissingTagKind}
	ErrInvalidTag      = &ParseError{Kind: InvalidTagKind}
	ErrInvalidNumber   = &ParseError{Kind: InvalidNumberKind}
	ErrInvalidUnit     = &ParseError{Kind: InvalidUnitKind}
	ErrInvalidCurrency = &ParseError{Kind: InvalidCurrencyKind}
	ErrInvalidJSON     = &ParseError{Kind: InvalidJSONKind}
	ErrInvalidDiscount = &ParseError{Kind: InvalidDiscountKind}
)

func MissingTag(key string) *ParseError      { return &ParseError{Kind: MissingTagKind, Field: key} }
func InvalidTag(key string) *ParseError      { return &ParseError{Kind: InvalidTagKind, Field: key} }
func InvalidNumber(field string) *ParseError { return &ParseError{Kind: InvalidNumberKind, Field: field} }
func InvalidJSON(field string) *ParseError   { return &ParseError{Kind: InvalidJSONKind, Field: field} }
func InvalidDiscount(kind string) *ParseError {
	return &ParseError{Kind: InvalidDiscountKind, Field: kind}
}

// KindError reports an event of the wrong kind.
type KindError struct {
	Expected int
	Got      int
}

func (e *KindError) Error() string {
	return fmt.Sprintf("invalid event kind: expected %d, got %d", e.Expected, e.Got)
}

// EncodeErrorKind classifies an encode failure.
type EncodeErrorKind int

const (
	EmptyRequiredFieldKind EncodeErrorKind = iota + 1
	JSONKind
	WrongKindKind
)

// EncodeError is returned when a listing cannot be rendered to tags or
// content.
type EncodeError struct {
	Kind  EncodeErrorKind
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	switch e.Kind {
	case EmptyRequiredFieldKind:
		return "empty required field: " + e.Field
	case JSONKind:
		if e.Err != nil {
			return "json encoding failed: " + e.Err.Error()
		}
		return "json encoding failed"
	case WrongKindKind:
		return "invalid event kind: " + e.Field
	}
	return fmt.Sprintf("listing encode error %d", e.Kind)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool {
	t, ok := target.(*EncodeError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

var (
	ErrEmptyRequiredField = &EncodeError{Kind: EmptyRequiredFieldKind}
	ErrEncodeJSON         = &EncodeError{Kind: JSONKind}
)

func EmptyRequiredField(name string) *EncodeError {
	return &EncodeError{Kind: EmptyRequiredFieldKind, Field: name}
}
