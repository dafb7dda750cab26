package capture

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects what the screen source captures.
type Mode string

const (
	ModeDisplay Mode = "display"
	ModeWindow  Mode = "window"
)

// ParseMode accepts "display" or "window" (case-insensitive). Empty means display.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDisplay:
		return ModeDisplay, nil
	case ModeWindow:
		return ModeWindow, nil
	default:
		return "", fmt.Errorf("%w: unknown capture mode %q", ErrInvalidOptions, s)
	}
}

// Target identifies the display or window to record. Width and Height are in
// points; Scale is the display pixel density.
type Target struct {
	ID     string
	X, Y   int
	Width  int
	Height int
	Scale  float64
}

// ResolveDimensions converts a target's point size into even pixel
// dimensions suitable for a 4:2:0 H.264 stream.
func ResolveDimensions(t Target) (int, int, error) {
	if t.Width <= 0 || t.Height <= 0 {
		return 0, 0, ErrNoTarget
	}
	scale := t.Scale
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	w := evenFloor(int(math.Round(float64(t.Width) * scale)))
	h := evenFloor(int(math.Round(float64(t.Height) * scale)))
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d at scale %.2f", ErrNoTarget, t.Width, t.Height, scale)
	}
	return w, h, nil
}

func evenFloor(n int) int {
	return n &^ 1
}

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("%w: size %q: %v", ErrInvalidOptions, s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: size %q", ErrInvalidOptions, s)
	}
	return w, h, nil
}
