package capture

import (
	"context"
	"errors"
)

const (
	// PixelFormatBGRA is the only pixel format produced by the capture sources.
	PixelFormatBGRA = "BGRA"

	// BytesPerPixel is the size of one BGRA pixel.
	BytesPerPixel = 4
)

var (
	ErrNotImplemented    = errors.New("screen capture backend is not implemented on this platform")
	ErrCancelled         = errors.New("screen capture request was cancelled")
	ErrNoTarget          = errors.New("no display or window selected")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrStreamEnded       = errors.New("capture stream ended unexpectedly")
	ErrInvalidOptions    = errors.New("invalid capture options")
)

// Source is one asynchronous producer. Start begins delivery on the
// source's own goroutine; Stop ends it and releases the device. Stop is
// idempotent and safe to call on a source that never started.
type Source interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ScreenSource is a Source whose pixel dimensions are known once it has
// been acquired, before Start.
type ScreenSource interface {
	Source
	Size() (width, height int)
}

// Handlers receives frames and terminal stream errors. OnError is called at
// most once per source.
type Handlers struct {
	OnFrame func(*Frame)
	OnError func(error)
}

// AudioHandlers receives microphone samples.
type AudioHandlers struct {
	OnSample func(*AudioSample)
	OnError  func(error)
}

func (h Handlers) frame(f *Frame) {
	if h.OnFrame != nil {
		h.OnFrame(f)
		return
	}
	f.Release()
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h AudioHandlers) sample(s *AudioSample) {
	if h.OnSample != nil {
		h.OnSample(s)
	}
}

func (h AudioHandlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
