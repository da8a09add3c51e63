package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownHashes(t *testing.T) {
	assert.Equal(t, "u4pruydqqvj", Encode(57.64911, 10.40744, 11))
	assert.Equal(t, "9q8yy", Encode(37.7749, -122.4194, 5))
	assert.Equal(t, "", Encode(1, 1, 0))
	assert.Len(t, Encode(0, 0, 12), 12)
}

func TestDecodeIsCaseInsensitive(t *testing.T) {
	lat1, lon1, ok := Decode("9Q8YY")
	require.True(t, ok)
	lat2, lon2, ok := Decode("9q8yy")
	require.True(t, ok)
	assert.Equal(t, lat1, lat2)
	assert.Equal(t, lon1, lon2)
}

func TestDecodeRejectsForeignCharacters(t *testing.T) {
	for _, h := range []string{"9q8ya", "u4i", "ol", "9q 8"} {
		_, _, ok := Decode(h)
		assert.False(t, ok, h)
	}
}

func TestDecodeEmptyIsWholeWorld(t *testing.T) {
	lat, lon, ok := Decode("")
	require.True(t, ok)
	assert.Equal(t, 0.0, lat)
	assert.Equal(t, 0.0, lon)
}

func TestEncodeDecodeStaysInsideCell(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		lat := r.Float64()*180 - 90
		lon := r.Float64()*360 - 180
		precision := 1 + r.Intn(12)

		hash := Encode(lat, lon, precision)
		box, ok := DecodeBBox(hash)
		require.True(t, ok)
		assert.True(t, box.Contains(lat, lon), "%f,%f not in %s", lat, lon, hash)

		clat, clon, _ := Decode(hash)
		assert.True(t, box.Contains(clat, clon))
	}
}

func TestProgressivePrefixes(t *testing.T) {
	got := ProgressivePrefixes("9q8yy")
	assert.Equal(t, []string{"9q8yy", "9q8y", "9q8", "9q", "9"}, got)

	for _, h := range []string{"u", "u4pruydqqvj"} {
		p := ProgressivePrefixes(h)
		require.Len(t, p, len(h))
		assert.Equal(t, h, p[0])
		for i := 1; i < len(p); i++ {
			assert.Less(t, len(p[i]), len(p[i-1]))
		}
	}
	assert.Empty(t, ProgressivePrefixes(""))
}

func TestCalculateResolution(t *testing.T) {
	assert.Equal(t, 1, CalculateResolution(12, 9))
	assert.Equal(t, 4, CalculateResolution(37.7749, 9))
	assert.Equal(t, 9, CalculateResolution(0.1+0.2, 9))
	assert.Equal(t, 2, CalculateResolution(1.23456, 2))
}

func TestTruncateDecimal(t *testing.T) {
	assert.Equal(t, 37.77, TruncateDecimal(37.7749, 2))
	assert.Equal(t, -122.42, TruncateDecimal(-122.4194, 2))
	assert.Equal(t, 12.0, TruncateDecimal(12, 1))
}

func TestDegreeLadder(t *testing.T) {
	assert.Equal(t, []string{"37.7749", "37.774", "37.77", "37.7"}, DegreeLadder(37.7749, 9))
	assert.Equal(t, []string{"12"}, DegreeLadder(12, 9))
	assert.Equal(t, []string{"1.2"}, DegreeLadder(1.25, 0))
}
