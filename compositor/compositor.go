// Package compositor draws the camera overlay on top of screen frames.
package compositor

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"go2tv.app/screenrec/capture"
)

// Compositor renders camera-over-screen frames. It keeps its scratch
// buffers between calls so a recording at a stable resolution composites
// without allocating. Safe for concurrent use.
type Compositor struct {
	mu sync.Mutex

	pool   *capture.FramePool
	scaled *image.RGBA
	mask   *image.Alpha
	scaler draw.Scaler
}

func New() *Compositor {
	return &Compositor{scaler: draw.ApproxBiLinear}
}

// Composite returns a new frame, the same size as screen, with the camera
// drawn on top according to cfg. It returns false when there is nothing to
// composite or the composite cannot be built; the caller then writes the
// screen frame unchanged. The returned frame comes from a pool and must be
// released by whoever consumes it last.
func (c *Compositor) Composite(screen, camera *capture.Frame, cfg OverlayConfig) (*capture.Frame, bool) {
	if camera == nil || !cfg.Enabled {
		return nil, false
	}
	if !screen.Valid() || !camera.Valid() {
		return nil, false
	}
	w, h, ok := cfg.overlaySize(screen.Width, camera.Width, camera.Height)
	if !ok {
		return nil, false
	}
	rect, ok := cfg.placement(screen.Width, screen.Height, w, h)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	scaled := c.scaledBuffer(w, h)
	cam := camera.Image()
	c.scaler.Scale(scaled, scaled.Bounds(), cam, cam.Bounds(), draw.Src, nil)

	out := c.outputPool(screen.Width, screen.Height).Get()
	copyPixels(out, screen)
	out.PTS = screen.PTS
	out.Status = screen.Status

	dst := out.Image()
	switch cfg.Shape {
	case Circle:
		blendMasked(dst, rect, scaled, c.circle(w, h))
	default:
		draw.Draw(dst, rect, scaled, image.Point{}, draw.Src)
	}
	return out, true
}

func (c *Compositor) scaledBuffer(w, h int) *image.RGBA {
	if c.scaled == nil || c.scaled.Rect.Dx() != w || c.scaled.Rect.Dy() != h {
		c.scaled = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return c.scaled
}

func (c *Compositor) circle(w, h int) *image.Alpha {
	if c.mask == nil || c.mask.Rect.Dx() != w || c.mask.Rect.Dy() != h {
		c.mask = circleMask(w, h)
	}
	return c.mask
}

func (c *Compositor) outputPool(w, h int) *capture.FramePool {
	if c.pool != nil {
		if pw, ph := c.pool.Size(); pw == w && ph == h {
			return c.pool
		}
	}
	c.pool = capture.NewFramePool(w, h, capture.DefaultPoolSize)
	return c.pool
}

// Fallbacks reports how many output buffers had to be allocated outside the
// pool.
func (c *Compositor) Fallbacks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return 0
	}
	return c.pool.Fallbacks()
}

func copyPixels(dst, src *capture.Frame) {
	if dst.Stride == src.Stride {
		copy(dst.Pix, src.Pix[:min(len(src.Pix), len(dst.Pix))])
		return
	}
	row := src.Width * capture.BytesPerPixel
	for y := 0; y < src.Height; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], src.Pix[y*src.Stride:y*src.Stride+row])
	}
}
