package capture

import (
	"image"
	"time"
)

// Status reports whether a screen frame carries a fully rendered image.
type Status uint8

const (
	StatusComplete Status = iota
	StatusPartial
)

func (s Status) String() string {
	if s == StatusComplete {
		return "complete"
	}
	return "partial"
}

// Frame is a decoded BGRA image plus its source-relative presentation time.
// A frame is owned by exactly one component at a time; whoever holds it last
// calls Release.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
	PTS    time.Duration
	Status Status

	pool *FramePool
}

// NewFrame allocates a zeroed frame with a tightly packed stride.
func NewFrame(width, height int) *Frame {
	stride := width * BytesPerPixel
	return &Frame{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Valid reports whether the buffer is large enough for the declared geometry.
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 || f.Stride < f.Width*BytesPerPixel {
		return false
	}
	return len(f.Pix) >= f.Stride*(f.Height-1)+f.Width*BytesPerPixel
}

// Clone returns an unpooled deep copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := &Frame{
		Width:  f.Width,
		Height: f.Height,
		Stride: f.Stride,
		Pix:    make([]byte, len(f.Pix)),
		PTS:    f.PTS,
		Status: f.Status,
	}
	copy(c.Pix, f.Pix)
	return c
}

// Image exposes the pixels as an *image.RGBA without copying. The channel
// order stays BGRA; scaling and alpha compositing treat channels
// independently, so results are correct as long as every operand is BGRA.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Release hands a pooled frame back to its pool. It is a no-op for frames
// that were not drawn from a pool.
func (f *Frame) Release() {
	if f == nil || f.pool == nil {
		return
	}
	f.pool.put(f)
}

// AudioSample is a chunk of interleaved signed 16-bit little-endian PCM.
type AudioSample struct {
	Data       []byte
	PTS        time.Duration
	SampleRate int
	Channels   int
}

// Duration is the playback length of the chunk.
func (s *AudioSample) Duration() time.Duration {
	if s == nil || s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	frames := len(s.Data) / (2 * s.Channels)
	return time.Duration(frames) * time.Second / time.Duration(s.SampleRate)
}
