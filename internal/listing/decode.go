package listing

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

// FromEvent decodes a kind 30402 event.
func FromEvent(ev nostr.Event) (Listing, error) {
	if ev.Kind != nostr.KindListing {
		return Listing{}, &KindError{Expected: nostr.KindListing, Got: ev.Kind}
	}
	return FromEventParts(ev.Tags, ev.Content)
}

// FromEventParts decodes a listing from its tags and content. Content that
// parses as listing JSON wins; otherwise the listing is rebuilt from tags.
// In both cases the d tag must be present and well formed.
func FromEventParts(tags [][]string, content string) (Listing, error) {
	d, err := ParseDTag(tags)
	if err != nil {
		return Listing{}, err
	}

	if strings.TrimSpace(content) != "" {
		if l, ok := listingFromContent(content); ok {
			switch {
			case strings.TrimSpace(l.DTag) == "":
				l.DTag = d
			case l.DTag != d:
				return Listing{}, InvalidTag(TagD)
			}
			return l, nil
		}
	}

	return fromTags(tags, d)
}

// ParseDTag returns the value of the first d tag.
func ParseDTag(tags [][]string) (string, error) {
	tag, ok := nostr.FindTag(tags, TagD)
	if !ok {
		return "", MissingTag(TagD)
	}
	v, ok := tag.Value(1)
	if !ok || strings.TrimSpace(v) == "" || !IsDTagBase64URL(v) {
		return "", InvalidTag(TagD)
	}
	return v, nil
}

var listingJSONKeys = [...]string{"d_tag", "product", "quantities", "prices"}

func listingFromContent(content string) (Listing, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &keys); err != nil {
		return Listing{}, false
	}
	for _, k := range listingJSONKeys {
		if _, ok := keys[k]; !ok {
			return Listing{}, false
		}
	}
	var l Listing
	if err := json.Unmarshal([]byte(content), &l); err != nil {
		return Listing{}, false
	}
	return l, true
}

// quantityFields is the positional layout of a quantity tag:
// [amount, unit], [amount, unit, label] or [amount, unit, label, count].
// An empty label slot means no label.
type quantityFields struct {
	amount, unit string
	label        *string
	count        *string
}

func splitQuantityTag(tag []string) (quantityFields, error) {
	f := quantityFields{}
	switch n := len(tag); {
	case n < 3:
		return f, InvalidTag(TagQuantity)
	case n == 3:
		f.amount, f.unit = tag[1], tag[2]
	case n == 4:
		f.amount, f.unit, f.label = tag[1], tag[2], &tag[3]
	default:
		f.amount, f.unit, f.label, f.count = tag[1], tag[2], &tag[3], &tag[4]
	}
	return f, nil
}

func parseQuantityTag(tag []string) (Quantity, error) {
	f, err := splitQuantityTag(tag)
	if err != nil {
		return Quantity{}, err
	}
	amount, err := value.ParseDecimal(f.amount)
	if err != nil {
		return Quantity{}, InvalidNumber(TagQuantity)
	}
	unit, err := value.ParseUnit(f.unit)
	if err != nil {
		return Quantity{}, ErrInvalidUnit
	}
	q := Quantity{Value: value.NewQuantity(amount, unit)}
	if f.label != nil {
		if v, ok := cleanValue(*f.label); ok {
			q.Label = &v
		}
	}
	if f.count != nil {
		n, err := strconv.ParseUint(strings.TrimSpace(*f.count), 10, 32)
		if err != nil {
			return Quantity{}, InvalidNumber(TagQuantity)
		}
		c := uint32(n)
		q.Count = &c
	}
	return q, nil
}

// priceFields is the positional layout of a price tag. The short form
// (amount, currency) leaves ref empty.
type priceFields struct {
	amount, currency string
	refAmount        string
	refUnit          string
	refLabel         *string
	short            bool
}

func splitPriceTag(tag []string) (priceFields, error) {
	f := priceFields{}
	switch len(tag) {
	case 0, 1, 2:
		return f, InvalidTag(TagPrice)
	case 3:
		f.amount, f.currency, f.short = tag[1], tag[2], true
	case 4:
		return f, InvalidTag(TagPrice)
	case 5:
		f.amount, f.currency, f.refAmount, f.refUnit = tag[1], tag[2], tag[3], tag[4]
	default:
		f.amount, f.currency, f.refAmount, f.refUnit, f.refLabel = tag[1], tag[2], tag[3], tag[4], &tag[5]
	}
	return f, nil
}

// parsePriceTag decodes a price tag. A short-form price refers to one
// canonical unit of defaultUnit.
func parsePriceTag(tag []string, defaultUnit value.Unit) (value.QuantityPrice, error) {
	f, err := splitPriceTag(tag)
	if err != nil {
		return value.QuantityPrice{}, err
	}
	amount, err := value.ParseDecimal(f.amount)
	if err != nil {
		return value.QuantityPrice{}, InvalidNumber(TagPrice)
	}
	currency, err := value.ParseCurrency(f.currency)
	if err != nil {
		return value.QuantityPrice{}, ErrInvalidCurrency
	}
	money := value.NewMoney(amount, currency)
	if f.short {
		return value.NewQuantityPrice(money, value.NewQuantity(decimal.NewFromInt(1), defaultUnit.Canonical())), nil
	}
	refAmount, err := value.ParseDecimal(f.refAmount)
	if err != nil {
		return value.QuantityPrice{}, InvalidNumber(TagPrice)
	}
	refUnit, err := value.ParseUnit(f.refUnit)
	if err != nil {
		return value.QuantityPrice{}, ErrInvalidUnit
	}
	ref := value.NewQuantity(refAmount, refUnit)
	if f.refLabel != nil {
		if v, ok := cleanValue(*f.refLabel); ok {
			ref.Label = &v
		}
	}
	return value.NewQuantityPrice(money, ref), nil
}

func parseDiscountTag(key string, tag []string) (value.Discount, error) {
	kind := strings.TrimPrefix(key, TagPriceDiscountPrefix)
	if len(tag) < 2 {
		return value.Discount{}, InvalidTag(key)
	}
	d, err := value.DecodeDiscount(kind, tag[1])
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, value.ErrDiscountJSON):
		return value.Discount{}, InvalidJSON(key)
	default:
		return value.Discount{}, InvalidDiscount(kind)
	}
}

func parseImageSize(v string) *ImageSize {
	w, h, ok := strings.Cut(v, "x")
	if !ok {
		return nil
	}
	wn, err := strconv.ParseUint(w, 10, 32)
	if err != nil {
		return nil
	}
	hn, err := strconv.ParseUint(h, 10, 32)
	if err != nil {
		return nil
	}
	return &ImageSize{W: uint32(wn), H: uint32(hn)}
}

func parseCoordinates(v string) (lat, lon float64, ok bool) {
	a, b, found := strings.Cut(v, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func fromTags(tags [][]string, d string) (Listing, error) {
	l := Listing{DTag: d}

	var (
		location   *Location
		geohash    *string
		coords     *[2]float64
		status     *Status
		start, end *uint64
	)

	// A single structured location tag anywhere makes every two-field
	// location tag a product location.
	hasStructured := false
	for _, t := range tags {
		if len(t) >= 3 && t[0] == TagLocation {
			hasStructured = true
			break
		}
	}

	for _, t := range tags {
		if len(t) == 0 {
			continue
		}
		key := t[0]
		switch key {
		case "key":
			setIfEmpty(&l.Product.Key, t)
		case "title":
			setIfEmpty(&l.Product.Title, t)
		case "category":
			setIfEmpty(&l.Product.Category, t)
		case "summary":
			setOptional(&l.Product.Summary, t)
		case "process":
			setOptional(&l.Product.Process, t)
		case "lot":
			setOptional(&l.Product.Lot, t)
		case "profile":
			setOptional(&l.Product.Profile, t)
		case "year":
			setOptional(&l.Product.Year, t)
		case TagLocation:
			if len(t) >= 3 || (!hasStructured && location == nil && len(t) >= 2) {
				if len(t) < 2 || strings.TrimSpace(t[1]) == "" {
					return Listing{}, InvalidTag(TagLocation)
				}
				location = &Location{
					Primary: t[1],
					City:    cleanedAt(t, 2),
					Region:  cleanedAt(t, 3),
					Country: cleanedAt(t, 4),
				}
			} else {
				setOptional(&l.Product.Location, t)
			}
		case TagQuantity:
			q, err := parseQuantityTag(t)
			if err != nil {
				return Listing{}, err
			}
			l.Quantities = append(l.Quantities, q)
		case TagPrice:
			unit := value.UnitEach
			if len(l.Quantities) > 0 {
				unit = l.Quantities[0].Value.Unit
			}
			p, err := parsePriceTag(t, unit)
			if err != nil {
				return Listing{}, err
			}
			l.Prices = append(l.Prices, p)
		case TagGeohash:
			// Prefix ladders run longest first; keep the most precise.
			if geohash == nil {
				geohash = cleanedAt(t, 1)
			}
		case TagLabel:
			if coords == nil && len(t) >= 3 && t[2] == LabelDD {
				if lat, lon, ok := parseCoordinates(t[1]); ok {
					coords = &[2]float64{lat, lon}
				}
			}
		case TagInventory:
			if len(t) < 2 {
				return Listing{}, InvalidTag(TagInventory)
			}
			inv, err := value.ParseDecimal(t[1])
			if err != nil {
				return Listing{}, InvalidNumber(TagInventory)
			}
			l.InventoryAvailable = &inv
		case TagPublishedAt, TagExpiresAt:
			if len(t) < 2 {
				return Listing{}, InvalidTag(key)
			}
			n, err := strconv.ParseUint(t[1], 10, 64)
			if err != nil {
				return Listing{}, InvalidNumber(key)
			}
			if key == TagPublishedAt {
				start = &n
			} else {
				end = &n
			}
		case TagStatus:
			v := ""
			if c := cleanedAt(t, 1); c != nil {
				v = *c
			}
			s := ParseStatus(v)
			status = &s
		case TagDelivery:
			method := ""
			if c := cleanedAt(t, 1); c != nil {
				method = *c
			}
			dm := parseDelivery(method, t)
			l.DeliveryMethod = &dm
		case TagImage:
			if len(t) < 2 {
				return Listing{}, InvalidTag(TagImage)
			}
			if strings.TrimSpace(t[1]) == "" {
				continue
			}
			img := Image{URL: t[1]}
			if len(t) >= 3 {
				img.Size = parseImageSize(t[2])
			}
			l.Images = append(l.Images, img)
		default:
			if strings.HasPrefix(key, TagPriceDiscountPrefix) {
				dc, err := parseDiscountTag(key, t)
				if err != nil {
					return Listing{}, err
				}
				l.Discounts = append(l.Discounts, dc)
			}
		}
	}

	switch {
	case status != nil:
		l.Availability = AvailabilityFromStatus(*status)
	case start != nil || end != nil:
		l.Availability = AvailabilityFromWindow(start, end)
	}

	if location != nil {
		if location.Geohash == nil {
			location.Geohash = geohash
		}
		if coords != nil {
			lat, lon := coords[0], coords[1]
			location.Lat, location.Lng = &lat, &lon
		}
		l.Location = location
	}

	return l, nil
}

func parseDelivery(method string, t []string) DeliveryMethod {
	switch DeliveryKind(method) {
	case DeliveryPickup, DeliveryLocalDelivery, DeliveryShipping:
		return DeliveryMethod{Kind: DeliveryKind(method)}
	case DeliveryOther:
		detail := ""
		if c := cleanedAt(t, 2); c != nil {
			detail = *c
		}
		return DeliveryMethod{Kind: DeliveryOther, Detail: detail}
	}
	return DeliveryMethod{Kind: DeliveryOther, Detail: method}
}
