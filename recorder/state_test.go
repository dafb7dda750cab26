package recorder

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/compositor"
	"go2tv.app/screenrec/writer"
)

func TestSetLatestCameraFrameStoresCopy(t *testing.T) {
	var s FrameState

	f := capture.NewFrame(2, 2)
	f.Pix[0] = 7
	s.SetLatestCameraFrame(f)
	f.Pix[0] = 9

	got := s.LatestCameraFrame()
	require.NotNil(t, got)
	assert.NotSame(t, f, got)
	assert.Equal(t, byte(7), got.Pix[0])
}

func TestSetLatestCameraFrameIgnoresInvalid(t *testing.T) {
	var s FrameState
	s.SetLatestCameraFrame(nil)
	s.SetLatestCameraFrame(&capture.Frame{Width: 2, Height: 2})
	assert.Nil(t, s.LatestCameraFrame())
}

func TestDetachClearsState(t *testing.T) {
	var s FrameState
	assert.Nil(t, s.Detach())

	mux := &fakeMuxer{log: &callLog{}, done: make(chan struct{})}
	w := writer.NewSession("out.mp4", mux, false, zerolog.Nop())
	s.Attach(w, compositor.New(), compositor.OverlayConfig{Enabled: true})
	s.SetLatestCameraFrame(capture.NewFrame(2, 2))

	assert.Same(t, w, s.Writer())
	assert.Same(t, w, s.Detach())
	assert.Nil(t, s.Writer())
	assert.Nil(t, s.LatestCameraFrame())
	snap := s.snapshot()
	assert.Nil(t, snap.compositor)
	assert.False(t, snap.overlay.Enabled)
}

func TestFrameStateConcurrentAccess(t *testing.T) {
	var s FrameState
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetLatestCameraFrame(capture.NewFrame(4, 4))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if f := s.LatestCameraFrame(); f != nil {
					_ = f.Pix[0]
				}
				_ = s.snapshot()
			}
		}()
	}
	wg.Wait()
	assert.NotNil(t, s.LatestCameraFrame())
}
