// Package recorder drives one screen recording at a time: it acquires the
// capture sources and the writer, routes frames between them, and finalizes
// and delivers the output when the recording stops.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/compositor"
	"go2tv.app/screenrec/internal/atomicfile"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/writer"
)

var (
	ErrSetup = errors.New("recording setup failed")
	ErrBusy  = errors.New("previous recording is still stopping")
)

const sourceStopTimeout = 10 * time.Second

// SourceFactory acquires capture sources. capture.FFmpegFactory and
// capture.PortalFactory implement it.
type SourceFactory interface {
	OpenScreen(ctx context.Context, opts capture.ScreenOptions, h capture.Handlers) (capture.ScreenSource, error)
	OpenCamera(ctx context.Context, opts capture.CameraOptions, h capture.Handlers) (capture.Source, error)
	OpenMicrophone(ctx context.Context, opts capture.MicrophoneOptions, h capture.AudioHandlers) (capture.Source, error)
}

// MuxerFactory creates the encoder for one output file.
type MuxerFactory func(ctx context.Context, opts writer.MuxerOptions) (writer.Muxer, error)

// FFmpegMuxers is the MuxerFactory used outside tests.
func FFmpegMuxers(ctx context.Context, opts writer.MuxerOptions) (writer.Muxer, error) {
	return writer.NewFFmpegMuxer(ctx, opts)
}

// DestinationChooser asks where a finished recording should go. ok is false
// when the user cancels, in which case the recording is discarded.
type DestinationChooser interface {
	ChooseDestination(ctx context.Context, suggested string) (path string, ok bool, err error)
}

// SettingsProvider returns the current settings; *config.Holder implements
// it.
type SettingsProvider interface {
	Get() config.Settings
}

// StartRequest names what to record.
type StartRequest struct {
	Mode   capture.Mode
	Target capture.Target
}

// Result describes a stopped recording.
type Result struct {
	RecordingID string
	// Path is where the recording was saved. Empty when it was discarded.
	Path      string
	Cancelled bool
	Duration  time.Duration
	Stats     writer.Stats
	// Cause is the stream failure that ended the recording, if any.
	Cause error
}

// Status is a point-in-time view of the controller.
type Status struct {
	State       State
	RecordingID string
	StartedAt   time.Time
	LastOutput  string
	LastError   error
}

type Options struct {
	Sources  SourceFactory
	Muxers   MuxerFactory
	Settings SettingsProvider

	// Optional.
	Chooser  DestinationChooser
	Observer Observer
	Preview  PreviewSink
	Logger   zerolog.Logger
	Debug    bool

	// TempDir is where in-progress recordings are written. Defaults to
	// os.TempDir().
	TempDir string
	Now     func() time.Time
}

// Controller is the recording lifecycle: Idle → Starting → Recording →
// Stopping → Idle. Start and stop are idempotent; a stop requested while a
// start is in flight is ignored.
type Controller struct {
	opts   Options
	log    zerolog.Logger
	frames FrameState

	mu         sync.Mutex
	state      State
	session    *RecordingSession
	lastOutput string
	lastErr    error
	events     eventQueue

	deliverMu sync.Mutex
	watchers  sync.WaitGroup
}

func NewController(opts Options) (*Controller, error) {
	if opts.Sources == nil || opts.Muxers == nil || opts.Settings == nil {
		return nil, errors.New("recorder: sources, muxers and settings are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Controller{
		opts: opts,
		log:  opts.Logger.With().Str("component", "recorder").Logger(),
	}, nil
}

// Frames exposes the shared frame state.
func (c *Controller) Frames() *FrameState { return &c.frames }

func (c *Controller) IsRecording() bool {
	return c.State() == StateRecording
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutputLocation is the path of the last successfully saved recording.
func (c *Controller) LastOutputLocation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOutput
}

// LastError is the most recent start, stream or save failure. A successful
// start clears it.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, LastOutput: c.lastOutput, LastError: c.lastErr}
	if c.session != nil {
		st.RecordingID = c.session.ID
		st.StartedAt = c.session.StartedAt
	}
	return st
}

func (c *Controller) setStateLocked(s State, id string) {
	c.state = s
	c.events.add(Event{Kind: EventStateChanged, State: s, RecordingID: id, At: c.opts.Now()})
}

func (c *Controller) errorLocked(err error, id string) {
	c.lastErr = err
	c.events.add(Event{Kind: EventError, State: c.state, RecordingID: id, Err: err, At: c.opts.Now()})
}

// flush delivers queued events outside the state lock.
func (c *Controller) flush() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	events := c.events.take()
	c.mu.Unlock()
	deliver(c.opts.Observer, c.log, events)
}

// StartRecording acquires every source and the writer and starts capturing.
// Either everything starts or everything acquired so far is released again.
// Calling it while a recording is starting or running does nothing.
func (c *Controller) StartRecording(ctx context.Context, req StartRequest) error {
	c.mu.Lock()
	switch c.state {
	case StateStarting, StateRecording:
		c.mu.Unlock()
		return nil
	case StateStopping:
		c.mu.Unlock()
		return ErrBusy
	}
	c.setStateLocked(StateStarting, "")
	c.mu.Unlock()
	c.flush()

	sess, err := c.start(ctx, req)

	c.mu.Lock()
	if err != nil {
		c.errorLocked(err, "")
		c.setStateLocked(StateIdle, "")
		c.mu.Unlock()
		c.flush()
		recordingsTotal.WithLabelValues("setup_failed").Inc()
		return err
	}
	c.session = sess
	c.lastErr = nil
	c.setStateLocked(StateRecording, sess.ID)
	c.mu.Unlock()
	c.flush()

	recordingActive.Set(1)
	c.watchers.Add(1)
	go c.watch(sess)
	return nil
}

func setupError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSetup, step, err)
}

func (c *Controller) start(ctx context.Context, req StartRequest) (*RecordingSession, error) {
	settings := c.opts.Settings.Get()
	if err := config.Validate(settings); err != nil {
		return nil, setupError("settings", err)
	}
	quality, _ := writer.ParseQuality(settings.Quality)

	// Timestamps of all sources count from here; time.Now carries the
	// monotonic reading they are measured against.
	epoch := time.Now()
	startedAt := c.opts.Now()
	id := uuid.NewString()
	log := c.log.With().Str("recording_id", id).Logger()
	removed, orphans := cleanupStaleTempDirs(c.opts.TempDir, staleTempAge, startedAt)
	if removed > 0 {
		log.Info().Int("dirs", removed).Msg("removed stale recording dirs")
	}
	for _, path := range orphans {
		log.Warn().Str("path", path).Msg("found a recording left by an earlier run")
	}

	sess := newRecordingSession(id, req, settings, startedAt, log)
	p := newPipeline(&c.frames, c.opts.Preview, log, sess.reportFailure)

	var rollback []func()
	fail := func(step string, err error) (*RecordingSession, error) {
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		log.Error().Err(err).Str("step", step).Msg("recording start failed")
		return nil, setupError(step, err)
	}
	stop := func(src capture.Source) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), sourceStopTimeout)
			defer cancel()
			if err := src.Stop(ctx); err != nil {
				log.Debug().Err(err).Msg("rollback: stopping source")
			}
		}
	}

	screen, err := c.opts.Sources.OpenScreen(ctx, capture.ScreenOptions{
		Mode:       req.Mode,
		Target:     req.Target,
		FrameRate:  settings.FrameRate,
		ShowCursor: settings.ShowCursor,
		Epoch:      epoch,
	}, p.screenHandlers())
	if err != nil {
		return fail("screen", err)
	}
	sess.screen = screen
	rollback = append(rollback, stop(screen))
	width, height := screen.Size()

	dir, err := os.MkdirTemp(c.opts.TempDir, tempDirPrefix)
	if err != nil {
		return fail("temp dir", err)
	}
	rollback = append(rollback, func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("rollback: removing temp dir")
		}
	})
	sess.TempDir = dir
	sess.TempPath = filepath.Join(dir, outputName(settings.Output.AppName, startedAt))

	mux, err := c.opts.Muxers(ctx, writer.MuxerOptions{
		FFmpegPath:       settings.FFmpegPath,
		Path:             sess.TempPath,
		Width:            width,
		Height:           height,
		FrameRate:        settings.FrameRate,
		Quality:          quality,
		Audio:            settings.Audio.Enabled,
		HardwareEncoding: settings.HardwareEncoding,
		Logger:           log,
		Debug:            c.opts.Debug,
	})
	if err != nil {
		return fail("writer", err)
	}
	sess.Writer = writer.NewSession(sess.TempPath, mux, settings.Audio.Enabled, log)
	rollback = append(rollback, func() {
		if err := sess.Writer.Abort(); err != nil {
			log.Debug().Err(err).Msg("rollback: aborting writer")
		}
	})

	if settings.Audio.Enabled {
		mic, err := c.opts.Sources.OpenMicrophone(ctx, capture.MicrophoneOptions{
			Device: settings.Audio.Device,
			Epoch:  epoch,
		}, p.microphoneHandlers())
		if err != nil {
			return fail("microphone", err)
		}
		sess.microphone = mic
		rollback = append(rollback, stop(mic))
	}

	var comp *compositor.Compositor
	if sess.Overlay.Enabled {
		cam, err := c.opts.Sources.OpenCamera(ctx, capture.CameraOptions{
			Device:    settings.Camera.Device,
			Width:     settings.Camera.Width,
			Height:    settings.Camera.Height,
			FrameRate: settings.Camera.FrameRate,
			Epoch:     epoch,
		}, p.cameraHandlers())
		if err != nil {
			return fail("camera", err)
		}
		sess.camera = cam
		rollback = append(rollback, stop(cam))
		comp = compositor.New()
	}

	// The writer must be reachable before the first frame can arrive.
	c.frames.Attach(sess.Writer, comp, sess.Overlay)
	rollback = append(rollback, func() { c.frames.Detach() })

	if err := screen.Start(ctx); err != nil {
		return fail("screen start", err)
	}
	if sess.microphone != nil {
		if err := sess.microphone.Start(ctx); err != nil {
			return fail("microphone start", err)
		}
	}
	if sess.camera != nil {
		if err := sess.camera.Start(ctx); err != nil {
			return fail("camera start", err)
		}
	}

	log.Info().
		Int("width", width).
		Int("height", height).
		Int("fps", settings.FrameRate).
		Bool("audio", settings.Audio.Enabled).
		Bool("camera", sess.Overlay.Enabled).
		Str("path", sess.TempPath).
		Msg("recording started")
	return sess, nil
}

// watch turns a stream or writer failure into a stop of that recording.
func (c *Controller) watch(sess *RecordingSession) {
	defer c.watchers.Done()

	writerDone := sess.Writer.Done()
	for {
		select {
		case <-sess.stopped:
			return
		case cause := <-sess.failures:
			_, _ = c.stop(context.Background(), sess, cause)
			return
		case <-writerDone:
			if err := sess.Writer.Err(); err != nil {
				_, _ = c.stop(context.Background(), sess, fmt.Errorf("writer: %w", err))
				return
			}
			writerDone = nil
		}
	}
}

// StopRecording ends the current recording and waits until it has been
// finalized and delivered. Calling it when nothing is recording, or while a
// stop is already in progress, does nothing.
func (c *Controller) StopRecording(ctx context.Context) (Result, error) {
	return c.stop(ctx, nil, nil)
}

// stop stops only (when non-nil) or the current recording.
func (c *Controller) stop(ctx context.Context, only *RecordingSession, cause error) (Result, error) {
	c.mu.Lock()
	sess := c.session
	if c.state != StateRecording || sess == nil || (only != nil && only != sess) {
		c.mu.Unlock()
		return Result{}, nil
	}
	c.setStateLocked(StateStopping, sess.ID)
	if cause != nil {
		c.errorLocked(cause, sess.ID)
	}
	c.mu.Unlock()
	c.flush()
	sess.markStopped()
	if cause != nil {
		sess.log.Warn().Err(cause).Msg("recording interrupted, keeping what was captured")
	}

	res, err := c.finish(ctx, sess, cause)

	c.mu.Lock()
	c.session = nil
	if res.Path != "" {
		c.lastOutput = res.Path
		c.events.add(Event{Kind: EventOutputSaved, State: c.state, RecordingID: sess.ID, Path: res.Path, At: c.opts.Now()})
	}
	if err != nil {
		c.errorLocked(err, sess.ID)
	}
	c.setStateLocked(StateIdle, sess.ID)
	c.mu.Unlock()
	c.flush()

	recordingActive.Set(0)
	recordingsTotal.WithLabelValues(outcome(res, err)).Inc()
	return res, err
}

func outcome(res Result, err error) string {
	switch {
	case errors.Is(err, writer.ErrEmpty):
		return "empty"
	case err != nil:
		return "save_failed"
	case res.Cancelled:
		return "discarded"
	case res.Cause != nil:
		return "interrupted"
	default:
		return "saved"
	}
}

func (c *Controller) finish(ctx context.Context, sess *RecordingSession, cause error) (Result, error) {
	res := Result{RecordingID: sess.ID, Cause: cause}
	log := sess.log

	// Sources are always stopped, whatever happens to the caller's context.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sourceStopTimeout)
	var g errgroup.Group
	if sess.microphone != nil {
		g.Go(func() error { return sess.microphone.Stop(stopCtx) })
	}
	if sess.camera != nil {
		g.Go(func() error { return sess.camera.Stop(stopCtx) })
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("stopping audio/camera")
	}
	if err := sess.screen.Stop(stopCtx); err != nil {
		log.Warn().Err(err).Msg("stopping screen capture")
	}
	cancel()

	c.frames.Detach()

	start := time.Now()
	ferr := sess.Writer.Finalize(ctx)
	finalizeSeconds.Observe(time.Since(start).Seconds())
	res.Stats = sess.Writer.Stats()
	res.Duration = c.opts.Now().Sub(sess.StartedAt)

	if errors.Is(ferr, writer.ErrEmpty) {
		if err := os.RemoveAll(sess.TempDir); err != nil {
			log.Debug().Err(err).Str("dir", sess.TempDir).Msg("removing empty recording dir")
		}
		return res, fmt.Errorf("nothing was recorded: %w", ferr)
	}
	if ferr != nil {
		return res, &SaveError{TempPath: sess.TempPath, Err: fmt.Errorf("finalize: %w", ferr)}
	}

	dest, ok, err := c.destination(ctx, sess)
	if err != nil {
		return res, &SaveError{TempPath: sess.TempPath, Err: fmt.Errorf("choose destination: %w", err)}
	}
	if !ok {
		log.Info().Msg("recording discarded")
		res.Cancelled = true
		if err := os.RemoveAll(sess.TempDir); err != nil {
			log.Warn().Err(err).Msg("removing discarded recording")
		}
		return res, nil
	}
	if err := atomicfile.Move(sess.TempPath, dest); err != nil {
		return res, &SaveError{TempPath: sess.TempPath, Err: err}
	}
	if err := os.Remove(sess.TempDir); err != nil {
		log.Debug().Err(err).Str("dir", sess.TempDir).Msg("removing temp dir")
	}

	res.Path = dest
	log.Info().
		Str("path", dest).
		Dur("duration", res.Duration).
		Uint64("frames", res.Stats.VideoAppended).
		Uint64("dropped", res.Stats.VideoDropped).
		Msg("recording saved")
	return res, nil
}

func (c *Controller) destination(ctx context.Context, sess *RecordingSession) (string, bool, error) {
	suggested := filepath.Join(sess.Settings.Output.Directory, filepath.Base(sess.TempPath))
	if sess.Settings.Output.AskWhereToSave && c.opts.Chooser != nil {
		return c.opts.Chooser.ChooseDestination(ctx, suggested)
	}
	return uniquePath(suggested), true, nil
}

// Close stops an active recording and waits for background work to end.
func (c *Controller) Close(ctx context.Context) error {
	_, err := c.StopRecording(ctx)
	c.watchers.Wait()
	return err
}
