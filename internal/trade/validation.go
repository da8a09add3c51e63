package trade

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

// TradeListing is a listing with every field a buyer needs resolved.
type TradeListing struct {
	ListingID          string                 `json:"listing_id"`
	ListingAddr        string                 `json:"listing_addr"`
	SellerPubKey       string                 `json:"seller_pubkey"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	ProductType        string                 `json:"product_type"`
	Unit               value.Unit             `json:"unit"`
	UnitPrice          value.Money            `json:"unit_price"`
	InventoryAvailable decimal.Decimal        `json:"inventory_available"`
	Availability       listing.Availability   `json:"availability"`
	Location           listing.Location       `json:"location"`
	DeliveryMethod     listing.DeliveryMethod `json:"delivery_method"`
	Listing            listing.Listing        `json:"listing"`
}

// ValidationCode names a validation failure on the wire.
type ValidationCode string

const (
	CodeInvalidKind             ValidationCode = "invalid_kind"
	CodeMissingListingID        ValidationCode = "missing_listing_id"
	CodeListingEventNotFound    ValidationCode = "listing_event_not_found"
	CodeListingEventFetchFailed ValidationCode = "listing_event_fetch_failed"
	CodeParseError              ValidationCode = "parse_error"
	CodeMissingTitle            ValidationCode = "missing_title"
	CodeMissingDescription      ValidationCode = "missing_description"
	CodeMissingProductType      ValidationCode = "missing_product_type"
	CodeMissingPrice            ValidationCode = "missing_price"
	CodeInvalidPrice            ValidationCode = "invalid_price"
	CodeMissingInventory        ValidationCode = "missing_inventory"
	CodeInvalidInventory        ValidationCode = "invalid_inventory"
	CodeMissingAvailability     ValidationCode = "missing_availability"
	CodeMissingLocation         ValidationCode = "missing_location"
	CodeMissingDeliveryMethod   ValidationCode = "missing_delivery_method"
)

var validationMessages = map[ValidationCode]string{
	CodeMissingListingID:      "missing listing id",
	CodeMissingTitle:          "missing listing title",
	CodeMissingDescription:    "missing listing description",
	CodeMissingProductType:    "missing listing product type",
	CodeMissingPrice:          "missing listing price",
	CodeInvalidPrice:          "invalid listing price",
	CodeMissingInventory:      "missing listing inventory",
	CodeInvalidInventory:      "invalid listing inventory",
	CodeMissingAvailability:   "missing listing availability",
	CodeMissingLocation:       "missing listing location",
	CodeMissingDeliveryMethod: "missing listing delivery method",
}

// ValidationError is returned by ValidateListingEvent. Kind is set for
// invalid_kind, ListingAddr for the fetch failures and Err for parse_error.
type ValidationError struct {
	Code        ValidationCode
	Kind        int
	ListingAddr string
	Err         error
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeInvalidKind:
		return fmt.Sprintf("invalid listing kind: %d", e.Kind)
	case CodeListingEventNotFound:
		return "listing event not found: " + e.ListingAddr
	case CodeListingEventFetchFailed:
		return "listing event fetch failed: " + e.ListingAddr
	case CodeParseError:
		return fmt.Sprintf("invalid listing data: %v", e.Err)
	}
	if msg, ok := validationMessages[e.Code]; ok {
		return msg
	}
	return string(e.Code)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches any *ValidationError with the same code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

type validationBody struct {
	Kind        *int   `json:"kind,omitempty"`
	ListingAddr string `json:"listing_addr,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (e *ValidationError) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind   ValidationCode  `json:"kind"`
		Amount *validationBody `json:"amount,omitempty"`
	}{Kind: e.Code}
	switch e.Code {
	case CodeInvalidKind:
		k := e.Kind
		out.Amount = &validationBody{Kind: &k}
	case CodeListingEventNotFound, CodeListingEventFetchFailed:
		out.Amount = &validationBody{ListingAddr: e.ListingAddr}
	case CodeParseError:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		out.Amount = &validationBody{Error: msg}
	}
	return json.Marshal(out)
}

func (e *ValidationError) UnmarshalJSON(data []byte) error {
	var in struct {
		Kind   ValidationCode  `json:"kind"`
		Amount *validationBody `json:"amount"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = ValidationError{Code: in.Kind}
	if in.Amount != nil {
		if in.Amount.Kind != nil {
			e.Kind = *in.Amount.Kind
		}
		e.ListingAddr = in.Amount.ListingAddr
		if in.Amount.Error != "" {
			e.Err = errors.New(in.Amount.Error)
		}
	}
	return nil
}

var (
	ErrInvalidListingKind    = &ValidationError{Code: CodeInvalidKind}
	ErrMissingListingID      = &ValidationError{Code: CodeMissingListingID}
	ErrListingEventNotFound  = &ValidationError{Code: CodeListingEventNotFound}
	ErrListingFetchFailed    = &ValidationError{Code: CodeListingEventFetchFailed}
	ErrListingParse          = &ValidationError{Code: CodeParseError}
	ErrMissingTitle          = &ValidationError{Code: CodeMissingTitle}
	ErrMissingDescription    = &ValidationError{Code: CodeMissingDescription}
	ErrMissingProductType    = &ValidationError{Code: CodeMissingProductType}
	ErrMissingPrice          = &ValidationError{Code: CodeMissingPrice}
	ErrInvalidPrice          = &ValidationError{Code: CodeInvalidPrice}
	ErrMissingInventory      = &ValidationError{Code: CodeMissingInventory}
	ErrInvalidInventory      = &ValidationError{Code: CodeInvalidInventory}
	ErrMissingAvailability   = &ValidationError{Code: CodeMissingAvailability}
	ErrMissingLocation       = &ValidationError{Code: CodeMissingLocation}
	ErrMissingDeliveryMethod = &ValidationError{Code: CodeMissingDeliveryMethod}
)

func fail(code ValidationCode) (TradeListing, error) {
	return TradeListing{}, &ValidationError{Code: code}
}

// ValidateListingEvent decodes ev and checks, in this order: kind, codec
// decode, listing id, address, title and description, product type, prices,
// inventory, then availability, location and delivery. The first failure
// is returned.
func ValidateListingEvent(ev nostr.Event) (TradeListing, error) {
	if ev.Kind != nostr.KindListing {
		return TradeListing{}, &ValidationError{Code: CodeInvalidKind, Kind: ev.Kind}
	}

	l, err := listing.FromEventParts(ev.Tags, ev.Content)
	if err != nil {
		return TradeListing{}, &ValidationError{Code: CodeParseError, Err: err}
	}

	listingID := strings.TrimSpace(l.DTag)
	if listingID == "" {
		return fail(CodeMissingListingID)
	}

	addr := ListingAddress(ev.PubKey, listingID)

	title := strings.TrimSpace(l.Product.Title)
	if title == "" {
		return fail(CodeMissingTitle)
	}
	description := ""
	if l.Product.Summary != nil {
		description = strings.TrimSpace(*l.Product.Summary)
	}
	if description == "" {
		return fail(CodeMissingDescription)
	}

	productType := strings.TrimSpace(l.Product.Category)
	if productType == "" {
		productType = strings.TrimSpace(l.Product.Key)
	}
	if productType == "" {
		return fail(CodeMissingProductType)
	}

	if len(l.Prices) == 0 {
		return fail(CodeMissingPrice)
	}
	for _, p := range l.Prices {
		if p.Amount.Amount.IsNegative() {
			return fail(CodeInvalidPrice)
		}
	}
	primary := l.Prices[0]

	inventory, ok := resolveInventory(l)
	if !ok {
		return fail(CodeMissingInventory)
	}
	if inventory.IsNegative() {
		return fail(CodeInvalidInventory)
	}

	if l.Availability == nil {
		return fail(CodeMissingAvailability)
	}
	if l.Location == nil {
		return fail(CodeMissingLocation)
	}
	if l.DeliveryMethod == nil {
		return fail(CodeMissingDeliveryMethod)
	}

	return TradeListing{
		ListingID:          listingID,
		ListingAddr:        addr.String(),
		SellerPubKey:       ev.PubKey,
		Title:              title,
		Description:        description,
		ProductType:        productType,
		Unit:               primary.Quantity.Unit,
		UnitPrice:          primary.Amount,
		InventoryAvailable: inventory,
		Availability:       *l.Availability,
		Location:           *l.Location,
		DeliveryMethod:     *l.DeliveryMethod,
		Listing:            l,
	}, nil
}

// resolveInventory prefers the explicit inventory, falling back to the sum
// of amount times count over bins that declare a count.
func resolveInventory(l listing.Listing) (decimal.Decimal, bool) {
	if l.InventoryAvailable != nil {
		return *l.InventoryAvailable, true
	}
	total, found := decimal.Zero, false
	for _, q := range l.Quantities {
		if q.Count == nil {
			continue
		}
		total = total.Add(q.Total())
		found = true
	}
	return total, found
}

// ValidateResult runs ValidateListingEvent and reports the outcome as a
// listing_validate_result payload.
func ValidateResult(ev nostr.Event) (ListingValidateResult, *TradeListing) {
	tl, err := ValidateListingEvent(ev)
	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			ve = &ValidationError{Code: CodeParseError, Err: err}
		}
		return ListingValidateResult{Valid: false, Errors: []*ValidationError{ve}}, nil
	}
	return ListingValidateResult{Valid: true, Errors: []*ValidationError{}}, &tl
}
