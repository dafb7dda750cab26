package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/screenrec/internal/processutil"
)

// pipeSource runs a child process that writes raw frames or PCM to stdout and
// turns each complete read into a callback on the reader goroutine.
type pipeSource struct {
	kind string
	bin  string
	args []string
	log  zerolog.Logger

	extraFiles []*os.File
	onStop     func() error

	// video
	width   int
	height  int
	pool    *FramePool
	video   Handlers
	isVideo bool

	// audio
	audio      AudioHandlers
	sampleRate int
	channels   int
	chunkBytes int

	firstFrameTimeout time.Duration

	// epoch is shared by every source of one recording so that screen,
	// camera and microphone timestamps are comparable.
	epoch time.Time

	mu       sync.Mutex
	cmd      *exec.Cmd
	stderr   *processutil.StderrBuffer
	ready    chan struct{}
	done     chan struct{}
	stopping atomic.Bool

	readyOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

func (s *pipeSource) Size() (int, int) {
	return s.width, s.height
}

func (s *pipeSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return nil
	}

	cmd := exec.Command(s.bin, s.args...)
	cmd.ExtraFiles = s.extraFiles
	processutil.HideConsoleWindow(cmd)
	s.stderr = &processutil.StderrBuffer{}
	cmd.Stderr = s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s capture stdout: %w", s.kind, err)
	}

	s.log.Debug().Str("cmd", s.bin+" "+strings.Join(s.args, " ")).Msg("starting capture process")
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s capture start: %v", ErrDeviceUnavailable, s.kind, err)
	}
	s.cmd = cmd
	if s.epoch.IsZero() {
		s.epoch = time.Now()
	}
	s.ready = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	if s.isVideo {
		go s.videoLoop(stdout)
	} else {
		go s.audioLoop(stdout)
	}

	if err := waitForFirstFrame(ctx, s.kind, s.ready, s.done, s.firstFrameTimeout, s.tail); err != nil {
		_ = s.Stop(context.Background())
		return err
	}
	s.log.Info().Msg("capture started")
	return nil
}

func (s *pipeSource) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)

		s.mu.Lock()
		cmd, done := s.cmd, s.done
		s.mu.Unlock()

		var out error
		if cmd != nil && cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				out = errors.Join(out, err)
			}
			select {
			case <-done:
			case <-ctx.Done():
				out = errors.Join(out, fmt.Errorf("%s capture stop: %w", s.kind, ctx.Err()))
			}
		}
		for _, f := range s.extraFiles {
			_ = f.Close()
		}
		if s.onStop != nil {
			out = errors.Join(out, s.onStop())
		}
		s.stopErr = out
		s.log.Info().Err(out).Msg("capture stopped")
	})
	return s.stopErr
}

func (s *pipeSource) tail() string {
	if s.stderr == nil {
		return "no stderr output"
	}
	return s.stderr.Tail(300)
}

func (s *pipeSource) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *pipeSource) videoLoop(stdout io.Reader) {
	defer close(s.done)

	// Without a pool the same buffer is handed out for every frame; the
	// consumer must copy before the next read overwrites it.
	var shared *Frame
	if s.pool == nil {
		shared = NewFrame(s.width, s.height)
	}
	for {
		f := shared
		if f == nil {
			f = s.pool.Get()
		}
		f.Status = StatusComplete
		n, err := io.ReadFull(stdout, f.Pix)
		f.PTS = time.Since(s.epoch)
		if err == nil {
			s.markReady()
			s.video.frame(f)
			continue
		}
		if errors.Is(err, io.ErrUnexpectedEOF) && n > 0 && !s.stopping.Load() {
			f.Status = StatusPartial
			s.video.frame(f)
		} else {
			f.Release()
		}
		break
	}
	s.finish(s.video.fail)
}

func (s *pipeSource) audioLoop(stdout io.Reader) {
	defer close(s.done)

	bytesPerSecond := time.Duration(s.sampleRate * s.channels * 2)
	var (
		first   time.Duration
		written time.Duration
	)
	for {
		buf := make([]byte, s.chunkBytes)
		_, err := io.ReadFull(stdout, buf)
		if err != nil {
			break
		}
		if written == 0 {
			// The first chunk finished recording just now; later chunks are
			// stamped by sample count to avoid pipe jitter.
			first = time.Since(s.epoch) - time.Duration(len(buf))*time.Second/bytesPerSecond
			s.markReady()
		}
		s.audio.sample(&AudioSample{
			Data:       buf,
			PTS:        first + written,
			SampleRate: s.sampleRate,
			Channels:   s.channels,
		})
		written += time.Duration(len(buf)) * time.Second / bytesPerSecond
	}
	s.finish(s.audio.fail)
}

func (s *pipeSource) finish(fail func(error)) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	waitErr := cmd.Wait()
	if s.stopping.Load() {
		return
	}
	err := fmt.Errorf("%w: %s: %s", ErrStreamEnded, s.kind, s.tail())
	if waitErr != nil {
		err = fmt.Errorf("%w: %s exited: %v: %s", ErrStreamEnded, s.kind, waitErr, s.tail())
	}
	s.log.Error().Err(err).Msg("capture stream failed")
	fail(err)
}
