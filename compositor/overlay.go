package compositor

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Position is the screen corner the camera overlay is anchored to.
type Position string

const (
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
)

// Shape is the outline of the camera overlay.
type Shape string

const (
	Rectangle Shape = "rectangle"
	Circle    Shape = "circle"
)

// Padding is the inset from the anchored corner, in points.
const Padding = 20

// OverlayConfig is the camera overlay setup of one recording. It is copied
// when the recording starts and never changes afterwards.
type OverlayConfig struct {
	Enabled      bool
	SizeFraction float64
	Position     Position
	Shape        Shape
	// Scale is the display pixel density; Padding is multiplied by it.
	Scale float64
}

func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.ToLower(strings.TrimSpace(s))); p {
	case BottomLeft, BottomRight, TopLeft, TopRight:
		return p, nil
	case "":
		return BottomRight, nil
	default:
		return "", fmt.Errorf("unknown overlay position %q", s)
	}
}

func ParseShape(s string) (Shape, error) {
	switch sh := Shape(strings.ToLower(strings.TrimSpace(s))); sh {
	case Rectangle, Circle:
		return sh, nil
	case "":
		return Circle, nil
	default:
		return "", fmt.Errorf("unknown overlay shape %q", s)
	}
}

func (c OverlayConfig) padding() int {
	scale := c.Scale
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	return int(math.Round(Padding * scale))
}

// overlaySize scales the camera so its width is SizeFraction of the screen
// width, keeping the camera aspect ratio.
func (c OverlayConfig) overlaySize(screenW, camW, camH int) (int, int, bool) {
	if !(c.SizeFraction > 0 && c.SizeFraction <= 1) || camW <= 0 || camH <= 0 {
		return 0, 0, false
	}
	w := int(math.Round(float64(screenW) * c.SizeFraction))
	h := int(math.Round(float64(w) * float64(camH) / float64(camW)))
	if w < 1 || h < 1 {
		return 0, 0, false
	}
	return w, h, true
}

// placement returns where an overlay of w x h lands on a screen of sw x sh.
// Image coordinates grow downwards, so bottom anchors are measured up from
// the bottom edge. An overlay that does not fit with padding is pushed back
// inside the frame; one larger than the frame does not fit at all.
func (c OverlayConfig) placement(sw, sh, w, h int) (image.Rectangle, bool) {
	if w > sw || h > sh {
		return image.Rectangle{}, false
	}
	pad := c.padding()

	var x, y int
	switch c.Position {
	case TopLeft:
		x, y = pad, pad
	case TopRight:
		x, y = sw-w-pad, pad
	case BottomLeft:
		x, y = pad, sh-h-pad
	default:
		x, y = sw-w-pad, sh-h-pad
	}
	x = clamp(x, 0, sw-w)
	y = clamp(y, 0, sh-h)
	return image.Rect(x, y, x+w, y+h), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
