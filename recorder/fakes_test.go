package recorder

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/writer"
)

// callLog records the order of source and muxer calls across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(s string) int {
	for i, c := range l.all() {
		if c == s {
			return i
		}
	}
	return -1
}

type fakeSource struct {
	name     string
	log      *callLog
	width    int
	height   int
	startErr error
	stopErr  error

	handlers capture.Handlers
	audio    capture.AudioHandlers

	mu      sync.Mutex
	started int
	stopped int
}

func (s *fakeSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.add("start:" + s.name)
	if s.startErr != nil {
		return s.startErr
	}
	s.started++
	return nil
}

func (s *fakeSource) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.add("stop:" + s.name)
	s.stopped++
	return s.stopErr
}

func (s *fakeSource) Size() (int, int) { return s.width, s.height }

func (s *fakeSource) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSource) frame(pts time.Duration) {
	f := capture.NewFrame(s.width, s.height)
	f.PTS = pts
	s.handlers.OnFrame(f)
}

type fakeFactory struct {
	log *callLog

	screenErr error
	cameraErr error
	micErr    error

	cameraStartErr error
	screenStopErr  error

	mu         sync.Mutex
	screen     *fakeSource
	camera     *fakeSource
	microphone *fakeSource
	screenOpts capture.ScreenOptions
	opens      int
}

func newFakeFactory(log *callLog) *fakeFactory {
	return &fakeFactory{log: log}
}

func (f *fakeFactory) OpenScreen(_ context.Context, opts capture.ScreenOptions, h capture.Handlers) (capture.ScreenSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.log.add("open:screen")
	if f.screenErr != nil {
		return nil, f.screenErr
	}
	f.screenOpts = opts
	f.screen = &fakeSource{name: "screen", log: f.log, width: 64, height: 32, handlers: h, stopErr: f.screenStopErr}
	return f.screen, nil
}

func (f *fakeFactory) OpenCamera(_ context.Context, opts capture.CameraOptions, h capture.Handlers) (capture.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("open:camera")
	if f.cameraErr != nil {
		return nil, f.cameraErr
	}
	f.camera = &fakeSource{name: "camera", log: f.log, width: opts.Width, height: opts.Height, handlers: h, startErr: f.cameraStartErr}
	return f.camera, nil
}

func (f *fakeFactory) OpenMicrophone(_ context.Context, _ capture.MicrophoneOptions, h capture.AudioHandlers) (capture.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("open:microphone")
	if f.micErr != nil {
		return nil, f.micErr
	}
	f.microphone = &fakeSource{name: "microphone", log: f.log, audio: h}
	return f.microphone, nil
}

func (f *fakeFactory) screenSource() *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screen
}

// fakeMuxer accepts everything and writes a placeholder file on Finish,
// returning the error recorded by fail.
type fakeMuxer struct {
	opts writer.MuxerOptions
	log  *callLog

	mu          sync.Mutex
	videoReady  bool
	video       []time.Duration
	audio       []time.Duration
	finishCalls int
	abortCalls  int
	err         error

	done chan struct{}
	once sync.Once
}

func (m *fakeMuxer) StartSession(time.Duration) {}

func (m *fakeMuxer) VideoReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoReady
}

func (m *fakeMuxer) AppendVideo(f *capture.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer f.Release()
	m.video = append(m.video, f.PTS)
	return nil
}

func (m *fakeMuxer) AudioReady() bool { return true }

func (m *fakeMuxer) AppendAudio(s *capture.AudioSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, s.PTS)
	return nil
}

func (m *fakeMuxer) MarkVideoFinished() {}
func (m *fakeMuxer) MarkAudioFinished() {}

func (m *fakeMuxer) Finish(context.Context) error {
	m.mu.Lock()
	m.finishCalls++
	m.mu.Unlock()
	m.log.add("finish")
	defer m.once.Do(func() { close(m.done) })
	if err := os.WriteFile(m.opts.Path, []byte("mp4"), 0o644); err != nil {
		return err
	}
	return m.Err()
}

func (m *fakeMuxer) Abort() error {
	m.mu.Lock()
	m.abortCalls++
	m.mu.Unlock()
	m.log.add("abort")
	m.once.Do(func() { close(m.done) })
	_ = os.Remove(m.opts.Path)
	return nil
}

// fail simulates a fatal encoder error.
func (m *fakeMuxer) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
}

func (m *fakeMuxer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *fakeMuxer) Done() <-chan struct{} { return m.done }

func (m *fakeMuxer) counts() (finish, abort, video int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finishCalls, m.abortCalls, len(m.video)
}

type fakeMuxers struct {
	log *callLog
	err error

	mu     sync.Mutex
	muxers []*fakeMuxer
}

func (f *fakeMuxers) open(_ context.Context, opts writer.MuxerOptions) (writer.Muxer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m := &fakeMuxer{opts: opts, log: f.log, videoReady: true, done: make(chan struct{})}
	f.muxers = append(f.muxers, m)
	return m, nil
}

func (f *fakeMuxers) last() *fakeMuxer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.muxers) == 0 {
		return nil
	}
	return f.muxers[len(f.muxers)-1]
}

type staticSettings config.Settings

func (s staticSettings) Get() config.Settings { return config.Settings(s) }

type chooserFunc func(ctx context.Context, suggested string) (string, bool, error)

func (f chooserFunc) ChooseDestination(ctx context.Context, suggested string) (string, bool, error) {
	return f(ctx, suggested)
}

var errDevice = errors.New("device busy")
