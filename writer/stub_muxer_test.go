package writer

import (
	"context"
	"sync"
	"time"

	"go2tv.app/screenrec/capture"
)

// stubMuxer records every call. Appending while the track reports not ready
// is counted as a violation.
type stubMuxer struct {
	mu sync.Mutex

	videoReady bool
	audioReady bool

	started    bool
	startAt    time.Duration
	startCalls int

	video      []time.Duration
	audio      []time.Duration
	violations int

	videoFinished bool
	audioFinished bool
	finishCalls   int
	abortCalls    int
	finishErr     error
	finishDelay   time.Duration

	done chan struct{}
	once sync.Once
}

func newStubMuxer() *stubMuxer {
	return &stubMuxer{videoReady: true, audioReady: true, done: make(chan struct{})}
}

func (m *stubMuxer) setReady(video, audio bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoReady, m.audioReady = video, audio
}

func (m *stubMuxer) StartSession(at time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if !m.started {
		m.started = true
		m.startAt = at
	}
}

func (m *stubMuxer) VideoReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoReady && !m.videoFinished
}

func (m *stubMuxer) AppendVideo(f *capture.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer f.Release()
	if !m.videoReady {
		m.violations++
		return ErrNotReady
	}
	m.video = append(m.video, f.PTS)
	return nil
}

func (m *stubMuxer) AudioReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioReady && !m.audioFinished
}

func (m *stubMuxer) AppendAudio(s *capture.AudioSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.audioReady {
		m.violations++
		return ErrNotReady
	}
	m.audio = append(m.audio, s.PTS)
	return nil
}

func (m *stubMuxer) MarkVideoFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoFinished = true
}

func (m *stubMuxer) MarkAudioFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioFinished = true
}

func (m *stubMuxer) Finish(ctx context.Context) error {
	m.mu.Lock()
	m.finishCalls++
	delay, err := m.finishDelay, m.finishErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.once.Do(func() { close(m.done) })
	return err
}

func (m *stubMuxer) Abort() error {
	m.mu.Lock()
	m.abortCalls++
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *stubMuxer) Err() error { return nil }

func (m *stubMuxer) Done() <-chan struct{} { return m.done }

type stubCalls struct {
	startAt       time.Duration
	startCalls    int
	video         []time.Duration
	audio         []time.Duration
	violations    int
	videoFinished bool
	audioFinished bool
	finishCalls   int
	abortCalls    int
}

func (m *stubMuxer) snapshot() stubCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stubCalls{
		startAt:       m.startAt,
		startCalls:    m.startCalls,
		video:         append([]time.Duration(nil), m.video...),
		audio:         append([]time.Duration(nil), m.audio...),
		violations:    m.violations,
		videoFinished: m.videoFinished,
		audioFinished: m.audioFinished,
		finishCalls:   m.finishCalls,
		abortCalls:    m.abortCalls,
	}
}

func frameAt(pts time.Duration) *capture.Frame {
	f := capture.NewFrame(4, 4)
	f.PTS = pts
	return f
}

func sampleAt(pts time.Duration) *capture.AudioSample {
	return &capture.AudioSample{
		Data:       make([]byte, 3840),
		PTS:        pts,
		SampleRate: 48000,
		Channels:   2,
	}
}
