package compositor

import (
	"image"
	"math"
)

// circleMask returns an alpha mask of a circle centred in a w x h box with
// radius min(w, h)/2. Coverage falls off linearly over one pixel at the edge.
func circleMask(w, h int) *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, w, h))
	r := float64(min(w, h)) / 2
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		dy := float64(y) + 0.5 - cy
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		for x := range row {
			dx := float64(x) + 0.5 - cx
			cov := r - math.Hypot(dx, dy) + 0.5
			switch {
			case cov >= 1:
				row[x] = 0xff
			case cov > 0:
				row[x] = uint8(cov*0xff + 0.5)
			}
		}
	}
	return m
}

// blendMasked draws src over dst inside r through mask. src and mask are
// indexed from their origin; all pixel buffers are 4 bytes per pixel.
func blendMasked(dst *image.RGBA, r image.Rectangle, src *image.RGBA, mask *image.Alpha) {
	for y := 0; y < r.Dy(); y++ {
		d := dst.Pix[(r.Min.Y+y)*dst.Stride+r.Min.X*4:]
		s := src.Pix[y*src.Stride:]
		m := mask.Pix[y*mask.Stride:]
		for x := 0; x < r.Dx(); x++ {
			a := uint32(m[x])
			if a == 0 {
				continue
			}
			i := x * 4
			if a == 0xff {
				copy(d[i:i+4], s[i:i+4])
				continue
			}
			na := 0xff - a
			for c := 0; c < 4; c++ {
				d[i+c] = uint8((uint32(s[i+c])*a + uint32(d[i+c])*na + 0x7f) / 0xff)
			}
		}
	}
}
