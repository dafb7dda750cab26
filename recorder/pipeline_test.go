package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/compositor"
	"go2tv.app/screenrec/writer"
)

type previewRecorder struct {
	mu     sync.Mutex
	frames []*capture.Frame
	panics bool
}

func (p *previewRecorder) Offer(f *capture.Frame) bool {
	if p.panics {
		panic("preview")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f.Clone())
	return true
}

func newTestPipeline(t *testing.T, audio bool) (*pipeline, *FrameState, *fakeMuxer, *writer.Session) {
	t.Helper()
	state := &FrameState{}
	mux := &fakeMuxer{log: &callLog{}, videoReady: true, done: make(chan struct{}), opts: writer.MuxerOptions{Path: t.TempDir() + "/out.mp4"}}
	ws := writer.NewSession(mux.opts.Path, mux, audio, zerolog.Nop())
	state.Attach(ws, nil, compositor.OverlayConfig{})
	p := newPipeline(state, nil, zerolog.Nop(), func(string, error) {})
	return p, state, mux, ws
}

func fill(f *capture.Frame, b, g, r byte) {
	for i := 0; i+3 < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = b, g, r, 0xff
	}
}

func pixel(f *capture.Frame, x, y int) [4]byte {
	i := y*f.Stride + x*capture.BytesPerPixel
	return [4]byte{f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]}
}

func TestScreenFrameWithoutWriterIsReleased(t *testing.T) {
	state := &FrameState{}
	p := newPipeline(state, nil, zerolog.Nop(), func(string, error) {})
	pool := capture.NewFramePool(4, 4, 1)

	p.screenFrame(pool.Get())
	pool.Get()
	assert.Zero(t, pool.Fallbacks())
}

func TestScreenFrameRespectsBackPressure(t *testing.T) {
	p, _, mux, ws := newTestPipeline(t, false)
	mux.videoReady = false
	pool := capture.NewFramePool(4, 4, 1)

	f := pool.Get()
	f.PTS = time.Second
	p.screenFrame(f)

	_, _, video := mux.counts()
	assert.Zero(t, video)
	_, anchored := ws.Anchor()
	assert.False(t, anchored)

	pool.Get()
	assert.Zero(t, pool.Fallbacks(), "dropped frame must go back to the pool")
}

func TestPartialScreenFrameIsDropped(t *testing.T) {
	p, _, mux, ws := newTestPipeline(t, false)

	f := capture.NewFrame(4, 4)
	f.Status = capture.StatusPartial
	p.screenFrame(f)

	_, _, video := mux.counts()
	assert.Zero(t, video)
	_, anchored := ws.Anchor()
	assert.False(t, anchored)
}

func TestAudioBeforeFirstVideoFrameIsDropped(t *testing.T) {
	p, _, mux, ws := newTestPipeline(t, true)

	sample := func(pts time.Duration) *capture.AudioSample {
		return &capture.AudioSample{Data: make([]byte, 3840), PTS: pts, SampleRate: 48000, Channels: 2}
	}

	p.audioSample(sample(500 * time.Millisecond))

	f := capture.NewFrame(4, 4)
	f.PTS = time.Second
	p.screenFrame(f)
	anchor, anchored := ws.Anchor()
	require.True(t, anchored)
	assert.Equal(t, time.Second, anchor)

	p.audioSample(sample(900 * time.Millisecond))
	p.audioSample(sample(time.Second + 10*time.Millisecond))

	mux.mu.Lock()
	defer mux.mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second + 10*time.Millisecond}, mux.audio)
	assert.Equal(t, []time.Duration{time.Second}, mux.video)
}

func TestScreenFrameIsComposited(t *testing.T) {
	p, state, mux, _ := newTestPipeline(t, false)
	preview := &previewRecorder{}
	p.preview = preview

	overlay := compositor.OverlayConfig{
		Enabled:      true,
		SizeFraction: 0.25,
		Position:     compositor.BottomRight,
		Shape:        compositor.Rectangle,
		Scale:        0.5,
	}
	state.Attach(state.Writer(), compositor.New(), overlay)

	cam := capture.NewFrame(40, 20)
	fill(cam, 0x10, 0x20, 0x30)
	p.cameraFrame(cam)

	screen := capture.NewFrame(200, 100)
	fill(screen, 0xa0, 0xb0, 0xc0)
	screen.PTS = time.Second
	p.screenFrame(screen)

	_, _, video := mux.counts()
	assert.Equal(t, 1, video)

	preview.mu.Lock()
	defer preview.mu.Unlock()
	require.Len(t, preview.frames, 1)
	out := preview.frames[0]
	assert.Equal(t, [4]byte{0x10, 0x20, 0x30, 0xff}, pixel(out, 165, 77))
	assert.Equal(t, [4]byte{0xa0, 0xb0, 0xc0, 0xff}, pixel(out, 5, 5))
	assert.Equal(t, [4]byte{0xa0, 0xb0, 0xc0, 0xff}, pixel(out, 139, 77))
}

func TestWithoutCameraFrameScreenIsWrittenUnchanged(t *testing.T) {
	p, state, mux, _ := newTestPipeline(t, false)
	preview := &previewRecorder{}
	p.preview = preview
	state.Attach(state.Writer(), compositor.New(), compositor.OverlayConfig{
		Enabled: true, SizeFraction: 0.2, Position: compositor.TopLeft, Shape: compositor.Circle, Scale: 1,
	})

	screen := capture.NewFrame(8, 8)
	fill(screen, 1, 2, 3)
	p.screenFrame(screen)

	_, _, video := mux.counts()
	assert.Equal(t, 1, video)
	require.Len(t, preview.frames, 1)
	assert.Equal(t, screen.Pix, preview.frames[0].Pix)
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, false)
	p.preview = &previewRecorder{panics: true}

	assert.NotPanics(t, func() { p.screenFrame(capture.NewFrame(4, 4)) })
}

func TestStreamErrorsAreReported(t *testing.T) {
	var sources []string
	p := newPipeline(&FrameState{}, nil, zerolog.Nop(), func(source string, err error) {
		sources = append(sources, source)
	})

	p.screenHandlers().OnError(errDevice)
	p.cameraHandlers().OnError(errDevice)
	p.microphoneHandlers().OnError(errDevice)
	assert.Equal(t, []string{"screen", "camera", "microphone"}, sources)
}

func TestDropReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{writer.ErrIncompleteFrame, reasonPartial},
		{writer.ErrNotReady, reasonBackPressure},
		{writer.ErrNotAnchored, reasonNotAnchored},
		{writer.ErrFinalized, reasonFinalized},
		{writer.ErrTrackFinished, reasonFinalized},
		{errors.New("boom"), reasonError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dropReason(tt.err), tt.err.Error())
	}
}
