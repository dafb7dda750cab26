package capture

import "sync/atomic"

// DefaultPoolSize covers one frame being encoded, one queued and one being
// produced.
const DefaultPoolSize = 3

// FramePool recycles fixed-size frames. Get never fails: when every pooled
// frame is in flight it allocates a one-off frame that is garbage collected
// instead of being returned.
type FramePool struct {
	width  int
	height int
	free   chan *Frame

	allocated atomic.Uint64
}

// NewFramePool preallocates size frames of width x height.
func NewFramePool(width, height, size int) *FramePool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &FramePool{
		width:  width,
		height: height,
		free:   make(chan *Frame, size),
	}
	for i := 0; i < size; i++ {
		f := NewFrame(width, height)
		f.pool = p
		p.free <- f
	}
	return p
}

// Size returns the frame dimensions served by the pool.
func (p *FramePool) Size() (int, int) {
	return p.width, p.height
}

// Get returns a frame with undefined pixel content.
func (p *FramePool) Get() *Frame {
	select {
	case f := <-p.free:
		f.PTS = 0
		f.Status = StatusComplete
		return f
	default:
	}
	p.allocated.Add(1)
	return NewFrame(p.width, p.height)
}

// Fallbacks reports how many times Get had to allocate.
func (p *FramePool) Fallbacks() uint64 {
	return p.allocated.Load()
}

func (p *FramePool) put(f *Frame) {
	select {
	case p.free <- f:
	default:
		// Released twice; the pool is already full.
	}
}
