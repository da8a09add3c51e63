// Package geo implements the geohash and decimal-degree helpers used to
// build multi-resolution location tags.
package geo

import (
	"strings"
)

const (
	DefaultGeohashPrecision = 9
	DefaultDDMaxResolution  = 9
	MaxGeohashPrecision     = 12

	alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"
)

// BBox is a geohash cell.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

func (b BBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Contains reports whether (lat, lon) lies inside the cell, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Encode returns the geohash of (lat, lon) with exactly precision characters.
// Bits alternate starting with longitude, five bits per character.
func Encode(lat, lon float64, precision int) string {
	if precision <= 0 {
		return ""
	}
	var (
		sb             strings.Builder
		bits, total, v int
		minLat, maxLat = -90.0, 90.0
		minLon, maxLon = -180.0, 180.0
	)
	sb.Grow(precision)
	for sb.Len() < precision {
		if total%2 == 0 {
			mid := (minLon + maxLon) / 2
			if lon > mid {
				v = v<<1 | 1
				minLon = mid
			} else {
				v <<= 1
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat > mid {
				v = v<<1 | 1
				minLat = mid
			} else {
				v <<= 1
				maxLat = mid
			}
		}
		bits++
		total++
		if bits == 5 {
			sb.WriteByte(alphabet[v])
			bits, v = 0, 0
		}
	}
	return sb.String()
}

// DecodeBBox returns the cell for hash. Characters are matched
// case-insensitively; any character outside the alphabet yields ok=false.
func DecodeBBox(hash string) (BBox, bool) {
	b := BBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	isLon := true
	for i := 0; i < len(hash); i++ {
		idx := charIndex(hash[i])
		if idx < 0 {
			return BBox{}, false
		}
		for shift := 4; shift >= 0; shift-- {
			bit := (idx >> shift) & 1
			if isLon {
				mid := (b.MinLon + b.MaxLon) / 2
				if bit == 1 {
					b.MinLon = mid
				} else {
					b.MaxLon = mid
				}
			} else {
				mid := (b.MinLat + b.MaxLat) / 2
				if bit == 1 {
					b.MinLat = mid
				} else {
					b.MaxLat = mid
				}
			}
			isLon = !isLon
		}
	}
	return b, true
}

// Decode returns the midpoint of the hash's cell.
func Decode(hash string) (lat, lon float64, ok bool) {
	b, ok := DecodeBBox(hash)
	if !ok {
		return 0, 0, false
	}
	lat, lon = b.Center()
	return lat, lon, true
}

// ProgressivePrefixes returns hash, then hash without its last character, and
// so on down to a single character.
func ProgressivePrefixes(hash string) []string {
	out := make([]string, 0, len(hash))
	for n := len(hash); n >= 1; n-- {
		out = append(out, hash[:n])
	}
	return out
}

func charIndex(c byte) int {
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	return strings.IndexByte(alphabet, c)
}
