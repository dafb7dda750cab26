package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/internal/processutil"
)

const (
	defaultVideoQueueSize = 1
	defaultAudioQueueSize = 64
	defaultFrameRate      = 30
	maxFrameRate          = 120

	audioSampleRate = capture.MicSampleRate
	audioChannels   = capture.MicChannels
	audioChunk      = 20 * time.Millisecond
	audioStallAfter = 40 * time.Millisecond
	audioMaxLag     = 100 * time.Millisecond
)

// MuxerOptions configures one output file.
type MuxerOptions struct {
	FFmpegPath string
	Path       string
	Width      int
	Height     int
	FrameRate  int
	Quality    Quality
	Audio      bool

	// HardwareEncoding probes for a hardware H.264 encoder before falling
	// back to libx264.
	HardwareEncoding bool

	VideoQueueSize int
	AudioQueueSize int

	Logger zerolog.Logger
	Debug  bool
}

// FFmpegMuxer encodes into an MP4 through an ffmpeg child process. Video is
// fed as raw BGRA on stdin, audio as s16le PCM over a loopback TCP
// connection that ffmpeg dials.
type FFmpegMuxer struct {
	opts MuxerOptions
	log  zerolog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	audioL net.Listener
	stderr *processutil.StderrBuffer

	video *track[*capture.Frame]
	audio *track[*capture.AudioSample]

	anchor    atomic.Int64
	startWall atomic.Int64

	finishing   atomic.Bool
	aborted     atomic.Bool
	videoBroken atomic.Bool
	audioBroken atomic.Bool
	loops       sync.WaitGroup

	exited  chan struct{}
	waitErr error

	// stopped closes on the first fatal error or when ffmpeg exits.
	stopped  chan struct{}
	stopOnce sync.Once

	errMu sync.Mutex
	err   error

	abortOnce sync.Once
	abortErr  error

	connMu    sync.Mutex
	audioConn net.Conn
}

func normalizeMuxerOptions(opts MuxerOptions) (MuxerOptions, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return opts, errors.New("output path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return opts, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Width%2 != 0 || opts.Height%2 != 0 {
		return opts, fmt.Errorf("frame size %dx%d must be even", opts.Width, opts.Height)
	}
	if strings.TrimSpace(opts.FFmpegPath) == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}
	if opts.FrameRate > maxFrameRate {
		opts.FrameRate = maxFrameRate
	}
	if opts.Quality == "" {
		opts.Quality = QualityMedium
	}
	if opts.VideoQueueSize <= 0 {
		opts.VideoQueueSize = defaultVideoQueueSize
	}
	if opts.VideoQueueSize > 8 {
		opts.VideoQueueSize = 8
	}
	if opts.AudioQueueSize <= 0 {
		opts.AudioQueueSize = defaultAudioQueueSize
	}
	if opts.AudioQueueSize > 1024 {
		opts.AudioQueueSize = 1024
	}
	return opts, nil
}

// NewFFmpegMuxer starts the encoder. The output file is created once the
// first frame has been written.
func NewFFmpegMuxer(ctx context.Context, options MuxerOptions) (*FFmpegMuxer, error) {
	opts, err := normalizeMuxerOptions(options)
	if err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	log := opts.Logger.With().Str("component", "muxer").Logger()
	plan := selectVideoEncoder(ctx, runtime.GOOS, bin, opts.Quality, opts.FrameRate, opts.HardwareEncoding, log)

	var (
		audioL   net.Listener
		audioURL string
	)
	if opts.Audio {
		audioL, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("audio listener: %w", err)
		}
		audioURL = "tcp://" + audioL.Addr().String()
	}

	args := muxerArgs(opts, plan, audioURL)
	stderr := &processutil.StderrBuffer{}
	cmd := exec.Command(bin, args...)
	cmd.Stderr = stderr
	processutil.HideConsoleWindow(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		if audioL != nil {
			_ = audioL.Close()
		}
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if opts.Debug {
		log.Debug().Str("cmd", bin+" "+strings.Join(args, " ")).Msg("starting ffmpeg")
	}
	if err := cmd.Start(); err != nil {
		if audioL != nil {
			_ = audioL.Close()
		}
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	m := &FFmpegMuxer{
		opts:   opts,
		log:    log,
		cmd:    cmd,
		stdin:  stdin,
		audioL: audioL,
		stderr: stderr,
		video:  newTrack[*capture.Frame](opts.VideoQueueSize),
		exited:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if opts.Audio {
		m.audio = newTrack[*capture.AudioSample](opts.AudioQueueSize)
	}

	go m.wait()
	m.loops.Add(1)
	go m.videoLoop()
	if m.audio != nil {
		m.loops.Add(1)
		go m.audioLoop()
	}
	return m, nil
}

func muxerArgs(opts MuxerOptions, plan encoderPlan, audioURL string) []string {
	fps := strconv.Itoa(opts.FrameRate)
	args := []string{"-hide_banner", "-nostats", "-y"}
	if opts.Debug {
		args = append(args, "-loglevel", "debug")
	} else {
		args = append(args, "-loglevel", "error")
	}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-probesize", "32",
		"-analyzeduration", "0",
		"-thread_queue_size", "64",
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", fps,
		"-i", "pipe:0",
	)
	if audioURL != "" {
		args = append(args,
			"-thread_queue_size", "1024",
			"-probesize", "32",
			"-analyzeduration", "0",
			"-f", "s16le",
			"-ar", strconv.Itoa(audioSampleRate),
			"-ac", strconv.Itoa(audioChannels),
			"-i", audioURL,
			"-map", "0:v:0",
			"-map", "1:a:0",
		)
	} else {
		args = append(args, "-map", "0:v:0", "-an")
	}

	if plan.videoFilter != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args, "-r", fps)
	if audioURL != "" {
		args = append(args,
			"-c:a", "aac",
			"-b:a", "128k",
			"-ar", "44100",
			"-ac", "2",
		)
	}
	return append(args,
		"-movflags", "+faststart",
		"-f", "mp4",
		opts.Path,
	)
}

func (m *FFmpegMuxer) wait() {
	err := m.cmd.Wait()
	m.waitErr = err
	if m.audioL != nil {
		_ = m.audioL.Close()
	}
	if !m.finishing.Load() && !m.aborted.Load() {
		if err == nil {
			err = errors.New("exited before the recording was finished")
		}
		m.fail(fmt.Errorf("ffmpeg: %w: %s", err, m.stderr.Tail(300)))
	}
	close(m.exited)
	m.stop()
}

// fail records the first fatal error. The process keeps running so that
// Finish can still close the inputs and let ffmpeg write the trailer.
func (m *FFmpegMuxer) fail(err error) {
	m.errMu.Lock()
	first := m.err == nil
	if first {
		m.err = err
	}
	m.errMu.Unlock()
	if first {
		m.log.Error().Err(err).Msg("muxer failed")
		m.stop()
	}
}

func (m *FFmpegMuxer) stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

func (m *FFmpegMuxer) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

func (m *FFmpegMuxer) processGone() bool {
	select {
	case <-m.exited:
		return true
	default:
		return m.aborted.Load()
	}
}

// Done is closed once a fatal error was recorded or ffmpeg exited.
func (m *FFmpegMuxer) Done() <-chan struct{} {
	return m.stopped
}

func (m *FFmpegMuxer) StartSession(at time.Duration) {
	if m.startWall.Load() != 0 {
		return
	}
	m.anchor.Store(int64(at))
	m.startWall.Store(time.Now().UnixNano())
}

func (m *FFmpegMuxer) VideoReady() bool {
	return !m.videoBroken.Load() && !m.processGone() && m.video.ready()
}

func (m *FFmpegMuxer) AppendVideo(f *capture.Frame) error {
	if m.videoBroken.Load() || m.processGone() {
		f.Release()
		return m.trackErr()
	}
	if f.Width != m.opts.Width || f.Height != m.opts.Height || !f.Valid() {
		f.Release()
		return fmt.Errorf("%w: frame %dx%d, want %dx%d", capture.ErrInvalidOptions, f.Width, f.Height, m.opts.Width, m.opts.Height)
	}
	if err := m.video.push(f); err != nil {
		f.Release()
		return err
	}
	return nil
}

func (m *FFmpegMuxer) AudioReady() bool {
	return m.audio != nil && !m.audioBroken.Load() && !m.processGone() && m.audio.ready()
}

func (m *FFmpegMuxer) AppendAudio(s *capture.AudioSample) error {
	if m.audio == nil {
		return ErrNoAudioTrack
	}
	if m.audioBroken.Load() || m.processGone() {
		return m.trackErr()
	}
	return m.audio.push(s)
}

func (m *FFmpegMuxer) trackErr() error {
	if err := m.Err(); err != nil {
		return err
	}
	return ErrTrackFinished
}

func (m *FFmpegMuxer) MarkVideoFinished() {
	m.video.finish()
}

func (m *FFmpegMuxer) MarkAudioFinished() {
	if m.audio != nil {
		m.audio.finish()
	}
}

// Finish drains both tracks, closes the encoder inputs and waits for ffmpeg
// to write the trailer. If ctx expires first the process is killed and the
// file is likely unplayable.
func (m *FFmpegMuxer) Finish(ctx context.Context) error {
	m.finishing.Store(true)
	m.MarkVideoFinished()
	m.MarkAudioFinished()

	drained := make(chan struct{})
	go func() {
		m.loops.Wait()
		close(drained)
	}()

	select {
	case <-m.exited:
	case <-ctx.Done():
		_ = m.cmd.Process.Kill()
		<-m.exited
		<-drained
		return fmt.Errorf("ffmpeg finalize: %w", ctx.Err())
	}
	<-drained

	out := m.Err()
	if m.waitErr != nil && out == nil {
		out = fmt.Errorf("ffmpeg finalize: %w: %s", m.waitErr, m.stderr.Tail(300))
	}
	return out
}

// Abort kills ffmpeg and removes the partial output.
func (m *FFmpegMuxer) Abort() error {
	m.abortOnce.Do(func() {
		m.aborted.Store(true)
		m.MarkVideoFinished()
		m.MarkAudioFinished()
		if err := m.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.abortErr = err
		}
		<-m.exited
		m.loops.Wait()
		if err := os.Remove(m.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.abortErr = errors.Join(m.abortErr, err)
		}
	})
	return m.abortErr
}

// Dropped reports samples rejected per track since the muxer started.
func (m *FFmpegMuxer) Dropped() (video, audio uint64) {
	video = m.video.dropped.Load()
	if m.audio != nil {
		audio = m.audio.dropped.Load()
	}
	return video, audio
}

func (m *FFmpegMuxer) videoLoop() {
	defer m.loops.Done()

	clock := slotClock{fps: m.opts.FrameRate}
	var last *capture.Frame
	defer func() {
		last.Release()
		_ = m.stdin.Close()
	}()

	for f := range m.video.queue {
		if m.videoBroken.Load() || m.processGone() {
			f.Release()
			continue
		}
		repeats, ok := clock.place(f.PTS - time.Duration(m.anchor.Load()))
		if !ok {
			f.Release()
			continue
		}
		if last != nil {
			for i := 0; i < repeats; i++ {
				if err := writeFrame(m.stdin, last); err != nil {
					break
				}
			}
		}
		if err := writeFrame(m.stdin, f); err != nil {
			f.Release()
			m.videoBroken.Store(true)
			// EOF on stdin lets ffmpeg finish the file with what it has.
			_ = m.stdin.Close()
			if !m.aborted.Load() {
				m.fail(fmt.Errorf("write video frame: %w", err))
			}
			continue
		}
		last.Release()
		last = f
	}
}

func writeFrame(w io.Writer, f *capture.Frame) error {
	row := f.Width * capture.BytesPerPixel
	if f.Stride == row {
		_, err := w.Write(f.Pix[:row*f.Height])
		return err
	}
	for y := 0; y < f.Height; y++ {
		if _, err := w.Write(f.Pix[y*f.Stride : y*f.Stride+row]); err != nil {
			return err
		}
	}
	return nil
}

// audioLoop relays PCM to ffmpeg. ffmpeg connects once it has probed the
// video input, so samples queue up until then. When the microphone stalls
// the relay keeps the encoder fed with silence, never running ahead of the
// wall clock.
func (m *FFmpegMuxer) audioLoop() {
	defer m.loops.Done()

	conn, err := m.audioL.Accept()
	if err != nil {
		for range m.audio.queue {
		}
		return
	}
	defer conn.Close()
	m.connMu.Lock()
	m.audioConn = conn
	m.connMu.Unlock()

	tl := newAudioTimeline(audioSampleRate, audioChannels)
	silence := make([]byte, tl.bytesAt(audioChunk))
	lastWrite := time.Now()
	ticker := time.NewTicker(audioChunk)
	defer ticker.Stop()

	write := func(b []byte) bool {
		if _, err := conn.Write(b); err != nil {
			m.audioBroken.Store(true)
			_ = conn.Close()
			if !m.finishing.Load() && !m.aborted.Load() {
				m.fail(fmt.Errorf("write audio: %w", err))
			}
			return false
		}
		lastWrite = time.Now()
		return true
	}
	writeSilence := func(n int) bool {
		for n > 0 {
			chunk := min(n, len(silence))
			if !write(silence[:chunk]) {
				return false
			}
			n -= chunk
		}
		return true
	}

	for {
		select {
		case s, ok := <-m.audio.queue:
			if !ok {
				return
			}
			if m.audioBroken.Load() || m.processGone() {
				continue
			}
			pad, skip := tl.place(s.PTS-time.Duration(m.anchor.Load()), len(s.Data))
			if writeSilence(pad) && skip < len(s.Data) {
				write(s.Data[skip:])
			}
		case <-ticker.C:
			start := m.startWall.Load()
			if m.audioBroken.Load() || start == 0 || time.Since(lastWrite) < audioStallAfter {
				continue
			}
			if time.Since(time.Unix(0, start))-tl.elapsed() < audioMaxLag {
				continue
			}
			if write(silence) {
				tl.advance(len(silence))
			}
		}
	}
}

// relayConn returns the audio connection once ffmpeg has dialed in.
func (m *FFmpegMuxer) relayConn() net.Conn {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.audioConn
}
