package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDimensions(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		w, h   int
		err    bool
	}{
		{"retina display", Target{Width: 1440, Height: 900, Scale: 2}, 2880, 1800, false},
		{"unscaled", Target{Width: 1920, Height: 1080, Scale: 1}, 1920, 1080, false},
		{"zero scale means 1", Target{Width: 1280, Height: 720}, 1280, 720, false},
		{"odd rounds down to even", Target{Width: 801, Height: 601, Scale: 1}, 800, 600, false},
		{"fractional scale", Target{Width: 1000, Height: 500, Scale: 1.25}, 1250, 624, false},
		{"no target", Target{}, 0, 0, true},
		{"collapses to zero", Target{Width: 1, Height: 1, Scale: 1}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := ResolveDimensions(tt.target)
			if tt.err {
				require.ErrorIs(t, err, ErrNoTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDisplay, m)

	m, err = ParseMode(" Window ")
	require.NoError(t, err)
	assert.Equal(t, ModeWindow, m)

	_, err = ParseMode("region")
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestParseSize(t *testing.T) {
	w, h, err := ParseSize("640x480")
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	_, _, err = ParseSize("640")
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, _, err = ParseSize("0x10")
	require.ErrorIs(t, err, ErrInvalidOptions)
}
