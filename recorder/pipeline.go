package recorder

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/writer"
)

// PreviewSink receives written video frames. Offer must not block and must
// copy what it keeps.
type PreviewSink interface {
	Offer(f *capture.Frame) bool
}

// pipeline holds the producer callbacks of one recording. Callbacks run on
// the sources' goroutines; they never block on each other and never let a
// panic escape.
type pipeline struct {
	state   *FrameState
	preview PreviewSink
	log     zerolog.Logger
	dropLog *rate.Sometimes

	// fail reports a terminal stream error; it triggers the implicit stop.
	fail func(source string, err error)
}

func newPipeline(state *FrameState, preview PreviewSink, log zerolog.Logger, fail func(string, error)) *pipeline {
	return &pipeline{
		state:   state,
		preview: preview,
		log:     log,
		dropLog: &rate.Sometimes{Interval: 2 * time.Second},
		fail:    fail,
	}
}

func (p *pipeline) recoverPanic(source string) {
	if r := recover(); r != nil {
		callbackPanicsTotal.WithLabelValues(source).Inc()
		p.log.Error().Interface("panic", r).Str("source", source).Msg("producer callback panicked")
	}
}

func (p *pipeline) drop(track, reason string) {
	samplesDroppedTotal.WithLabelValues(track, reason).Inc()
	p.dropLog.Do(func() {
		p.log.Debug().Str("track", track).Str("reason", reason).Msg("dropping sample")
	})
}

func (p *pipeline) screenHandlers() capture.Handlers {
	return capture.Handlers{
		OnFrame: p.screenFrame,
		OnError: func(err error) { p.fail("screen", err) },
	}
}

func (p *pipeline) cameraHandlers() capture.Handlers {
	return capture.Handlers{
		OnFrame: p.cameraFrame,
		OnError: func(err error) { p.fail("camera", err) },
	}
}

func (p *pipeline) microphoneHandlers() capture.AudioHandlers {
	return capture.AudioHandlers{
		OnSample: p.audioSample,
		OnError:  func(err error) { p.fail("microphone", err) },
	}
}

// screenFrame composites the camera over f when an overlay is configured
// and hands the result to the writer. f is owned by this call.
func (p *pipeline) screenFrame(f *capture.Frame) {
	defer p.recoverPanic("screen")

	snap := p.state.snapshot()
	if snap.writer == nil {
		f.Release()
		return
	}
	if f.Status != capture.StatusComplete {
		p.drop(trackVideo, reasonPartial)
		f.Release()
		return
	}
	if !snap.writer.VideoReady() {
		p.drop(trackVideo, reasonBackPressure)
		f.Release()
		return
	}

	out := f
	if snap.compositor != nil && snap.overlay.Enabled && snap.camera != nil {
		if composed, ok := snap.compositor.Composite(f, snap.camera, snap.overlay); ok {
			f.Release()
			out = composed
		} else {
			compositeFallbackTotal.Inc()
		}
	}
	if p.preview != nil {
		p.preview.Offer(out)
	}

	if err := snap.writer.AppendVideoFrame(out); err != nil {
		p.drop(trackVideo, dropReason(err))
		return
	}
	samplesAppendedTotal.WithLabelValues(trackVideo).Inc()
}

func (p *pipeline) cameraFrame(f *capture.Frame) {
	defer p.recoverPanic("camera")
	p.state.SetLatestCameraFrame(f)
}

func (p *pipeline) audioSample(s *capture.AudioSample) {
	defer p.recoverPanic("microphone")

	w := p.state.Writer()
	if w == nil {
		return
	}
	if !w.AudioReady() {
		if _, anchored := w.Anchor(); !anchored {
			p.drop(trackAudio, reasonNotAnchored)
		} else {
			p.drop(trackAudio, reasonBackPressure)
		}
		return
	}
	if err := w.AppendAudioSample(s); err != nil {
		p.drop(trackAudio, dropReason(err))
		return
	}
	samplesAppendedTotal.WithLabelValues(trackAudio).Inc()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, writer.ErrIncompleteFrame):
		return reasonPartial
	case errors.Is(err, writer.ErrNotReady):
		return reasonBackPressure
	case errors.Is(err, writer.ErrNotAnchored):
		return reasonNotAnchored
	case errors.Is(err, writer.ErrFinalized), errors.Is(err, writer.ErrTrackFinished):
		return reasonFinalized
	default:
		return reasonError
	}
}
