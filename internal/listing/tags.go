package listing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/tradedvm/internal/geo"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

// Tag keys.
const (
	TagD                   = "d"
	TagQuantity            = "quantity"
	TagPrice               = "price"
	TagPriceDiscountPrefix = "price-discount-"
	TagInventory           = "inventory"
	TagStatus              = "status"
	TagPublishedAt         = "published_at"
	TagExpiresAt           = "expires_at"
	TagDelivery            = "delivery"
	TagLocation            = "location"
	TagImage               = "image"
	TagGeohash             = "g"
	TagLabel               = "l"
	TagLabelNamespace      = "L"

	LabelDD    = "dd"
	LabelDDLat = "dd.lat"
	LabelDDLon = "dd.lon"
)

// TagOptions controls which optional tag groups are emitted.
type TagOptions struct {
	GeohashPrecision    int
	DDMaxResolution     int
	IncludeGeohash      bool
	IncludeGPS          bool
	IncludeInventory    bool
	IncludeAvailability bool
	IncludeDelivery     bool
}

// DefaultTagOptions emits geo ladders but no trade-only fields.
func DefaultTagOptions() TagOptions {
	return TagOptions{
		GeohashPrecision: geo.DefaultGeohashPrecision,
		DDMaxResolution:  geo.DefaultDDMaxResolution,
		IncludeGeohash:   true,
		IncludeGPS:       true,
	}
}

// TradeTagOptions is DefaultTagOptions plus inventory, availability and
// delivery.
func TradeTagOptions() TagOptions {
	o := DefaultTagOptions()
	o.IncludeInventory = true
	o.IncludeAvailability = true
	o.IncludeDelivery = true
	return o
}

// Tags encodes l with DefaultTagOptions.
func Tags(l Listing) ([][]string, error) {
	return TagsWithOptions(l, DefaultTagOptions())
}

// TagsFull encodes l with TradeTagOptions.
func TagsFull(l Listing) ([][]string, error) {
	return TagsWithOptions(l, TradeTagOptions())
}

// TagsWithOptions renders l as an ordered tag list.
func TagsWithOptions(l Listing, opts TagOptions) ([][]string, error) {
	d := strings.TrimSpace(l.DTag)
	if d == "" {
		return nil, EmptyRequiredField(TagD)
	}

	tags := [][]string{{TagD, d}}

	p := l.Product
	tags = pushValue(tags, "key", p.Key)
	tags = pushValue(tags, "title", p.Title)
	tags = pushValue(tags, "category", p.Category)
	tags = pushOptional(tags, "summary", p.Summary)
	tags = pushOptional(tags, "process", p.Process)
	tags = pushOptional(tags, "lot", p.Lot)
	tags = pushOptional(tags, "location", p.Location)
	tags = pushOptional(tags, "profile", p.Profile)
	tags = pushOptional(tags, "year", p.Year)

	for _, q := range l.Quantities {
		tags = append(tags, quantityTag(q))
	}
	for _, pr := range l.Prices {
		tags = append(tags, priceTag(pr))
	}
	for _, dc := range l.Discounts {
		kind, payload, err := value.EncodeDiscount(dc)
		if err != nil {
			return nil, &EncodeError{Kind: JSONKind, Field: "discount", Err: err}
		}
		tags = append(tags, []string{TagPriceDiscountPrefix + string(kind), payload})
	}

	if opts.IncludeInventory && l.InventoryAvailable != nil {
		tags = append(tags, []string{TagInventory, value.FormatDecimal(*l.InventoryAvailable)})
	}

	if opts.IncludeAvailability && l.Availability != nil {
		a := l.Availability
		switch a.Kind {
		case AvailabilityStatus:
			tags = pushValue(tags, TagStatus, a.Status.String())
		case AvailabilityWindow:
			if a.Start != nil {
				tags = append(tags, []string{TagPublishedAt, strconv.FormatUint(*a.Start, 10)})
			}
			if a.End != nil {
				tags = append(tags, []string{TagExpiresAt, strconv.FormatUint(*a.End, 10)})
			}
		}
	}

	if opts.IncludeDelivery && l.DeliveryMethod != nil {
		dm := l.DeliveryMethod
		if dm.Kind == DeliveryOther {
			tag := []string{TagDelivery, string(DeliveryOther)}
			if detail, ok := cleanValue(dm.Detail); ok {
				tag = append(tag, detail)
			}
			tags = append(tags, tag)
		} else {
			tags = append(tags, []string{TagDelivery, string(dm.Kind)})
		}
	}

	if loc := l.Location; loc != nil {
		if primary, ok := cleanValue(loc.Primary); ok {
			tags = append(tags, locationTag(primary, loc))
			if opts.IncludeGeohash || opts.IncludeGPS {
				tags = appendGeoTags(tags, *loc, opts)
			}
		}
	}

	for _, img := range l.Images {
		url, ok := cleanValue(img.URL)
		if !ok {
			continue
		}
		tag := []string{TagImage, url}
		if img.Size != nil {
			tag = append(tag, img.Size.String())
		}
		tags = append(tags, tag)
	}

	return tags, nil
}

// locationTag keeps city, region and country positional: a missing middle
// part is written as "" and trailing missing parts are dropped.
func locationTag(primary string, loc *Location) []string {
	parts := []string{TagLocation, primary}
	last := len(parts)
	for _, part := range []*string{loc.City, loc.Region, loc.Country} {
		v, ok := cleanPtr(part)
		parts = append(parts, v)
		if ok {
			last = len(parts)
		}
	}
	return parts[:last]
}

func pushValue(tags [][]string, key, v string) [][]string {
	if cleaned, ok := cleanValue(v); ok {
		return append(tags, []string{key, cleaned})
	}
	return tags
}

func pushOptional(tags [][]string, key string, v *string) [][]string {
	if v == nil {
		return tags
	}
	return pushValue(tags, key, *v)
}

func quantityTag(q Quantity) []string {
	tag := []string{TagQuantity, value.FormatDecimal(q.Value.Amount), q.Value.Unit.Code()}
	label, hasLabel := q.EffectiveLabel()
	if hasLabel || q.Count != nil {
		tag = append(tag, label)
	}
	if q.Count != nil {
		tag = append(tag, strconv.FormatUint(uint64(*q.Count), 10))
	}
	return tag
}

func priceTag(p value.QuantityPrice) []string {
	tag := []string{
		TagPrice,
		value.FormatDecimal(p.Amount.Amount),
		strings.ToLower(p.Amount.Currency.String()),
		value.FormatDecimal(p.Quantity.Amount),
		p.Quantity.Unit.Code(),
	}
	if label, ok := cleanPtr(p.Quantity.Label); ok {
		tag = append(tag, label)
	}
	return tag
}

// appendGeoTags emits the geohash prefix ladder followed by the
// decimal-degree ladders. Coordinates missing from the location are
// recovered from the geohash midpoint when GPS tags are requested.
func appendGeoTags(tags [][]string, loc Location, opts TagOptions) [][]string {
	lat, hasLat := finite(loc.Lat)
	lon, hasLon := finite(loc.Lng)
	storedHash, hasStoredHash := cleanPtr(loc.Geohash)

	var hash string
	if opts.IncludeGeohash {
		if hasLat && hasLon {
			hash = geo.Encode(lat, lon, max(opts.GeohashPrecision, 1))
		} else if hasStoredHash {
			hash = storedHash
		}
	}
	for _, prefix := range geo.ProgressivePrefixes(hash) {
		tags = append(tags, []string{TagGeohash, prefix})
	}

	if !opts.IncludeGPS {
		return tags
	}
	if !hasLat || !hasLon {
		source := hash
		if source == "" {
			source = storedHash
		}
		if source != "" {
			if dlat, dlon, ok := geo.Decode(source); ok {
				lat, lon, hasLat, hasLon = dlat, dlon, true, true
			}
		}
	}
	if !hasLat || !hasLon {
		return tags
	}

	tags = append(tags, []string{TagLabel, fmt.Sprintf("%s, %s", geo.FormatCoordinate(lat), geo.FormatCoordinate(lon)), LabelDD})
	maxRes := max(opts.DDMaxResolution, 1)
	tags = append(tags, []string{TagLabelNamespace, LabelDDLat})
	for _, v := range geo.DegreeLadder(lat, maxRes) {
		tags = append(tags, []string{TagLabel, v, LabelDDLat})
	}
	tags = append(tags, []string{TagLabelNamespace, LabelDDLon})
	for _, v := range geo.DegreeLadder(lon, maxRes) {
		tags = append(tags, []string{TagLabel, v, LabelDDLon})
	}
	return tags
}

func finite(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}
