package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObservationTimestamp(t *testing.T) {
	got, err := ParseObservationTimestamp("13-04-2025 15:30", time.Local)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.April, 13, 15, 30, 0, 0, time.Local)))

	got, err = ParseObservationTimestamp("  01-12-2024 07:05 ", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.December, 1, 7, 5, 0, 0, time.Local), got)
}

func TestParseObservationTimestampUsesLocation(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	got, err := ParseObservationTimestamp("13-04-2025 15:30", almaty)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Hour())
	assert.Equal(t, almaty, got.Location())
}

func TestParseObservationTimestampRejects(t *testing.T) {
	for _, input := range []string{
		"2025-04-13",
		"13-04-2025",
		"13.04.2025 15:30",
		"13-04-2025 3:30 PM",
		"32-01-2025 10:00",
		"13-04-2025 25:00",
		"",
		"вчера",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseObservationTimestamp(input, time.UTC)
			assert.ErrorIs(t, err, ErrInvalidTimestamp)
		})
	}
}

func TestExtractCoordinates(t *testing.T) {
	tests := []struct {
		input    string
		lat, lon float64
		ok       bool
	}{
		{input: "43.2220, 76.8512", lat: 43.2220, lon: 76.8512, ok: true},
		{input: "43.2220 76.8512", lat: 43.2220, lon: 76.8512, ok: true},
		{input: "-33.86,151.2", lat: -33.86, lon: 151.2, ok: true},
		{input: "near lake +51.1 , -0.12 north shore", lat: 51.1, lon: -0.12, ok: true},
		{input: "43 76", lat: 43, lon: 76, ok: true},
		{input: "Main Street 5", ok: false},
		{input: "", ok: false},
		{input: "park", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lat, lon, ok := ExtractCoordinates(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.lat, lat, 1e-9)
				assert.InDelta(t, tt.lon, lon, 1e-9)
			}
		})
	}
}

func TestExtractCoordinatesSkipsRangeCheck(t *testing.T) {
	lat, lon, ok := ExtractCoordinates("123.5, 500")
	assert.True(t, ok)
	assert.False(t, InRange(lat, lon))
	assert.True(t, InRange(-90, 180))
}
