package writer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/screenrec/capture"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateCreated State = iota
	StateWriting
	StateFinalizing
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// FinalizeTimeout bounds how long Finalize waits for the container to be
// flushed. Finalize ignores cancellation of its caller's context.
var FinalizeTimeout = 2 * time.Minute

// Stats counts samples per track.
type Stats struct {
	VideoAppended uint64
	VideoDropped  uint64
	AudioAppended uint64
	AudioDropped  uint64
}

// Session is the encode state of one output file. The first accepted video
// frame anchors the timeline; audio is only accepted after that. All methods
// are safe for concurrent use.
type Session struct {
	path  string
	muxer Muxer
	audio bool
	log   zerolog.Logger

	mu       sync.Mutex
	state    State
	anchor   time.Duration
	anchored bool
	stats    Stats

	finalized   chan struct{}
	closeOnce   sync.Once
	finalizeErr error
}

func NewSession(path string, m Muxer, audio bool, log zerolog.Logger) *Session {
	return &Session{
		path:      path,
		muxer:     m,
		audio:     audio,
		log:       log,
		finalized: make(chan struct{}),
	}
}

func (s *Session) Path() string { return s.path }

func (s *Session) HasAudio() bool { return s.audio }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Anchor returns the presentation time of the first accepted video frame.
func (s *Session) Anchor() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor, s.anchored
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Err reports a fatal muxer error.
func (s *Session) Err() error { return s.muxer.Err() }

// Done is closed when the muxer stops accepting data, either because it
// failed or because the session was finalized.
func (s *Session) Done() <-chan struct{} { return s.muxer.Done() }

func (s *Session) writable() bool {
	return s.state == StateCreated || s.state == StateWriting
}

func (s *Session) VideoReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable() && s.muxer.VideoReady()
}

func (s *Session) AudioReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio && s.state == StateWriting && s.muxer.AudioReady()
}

// AppendVideoFrame hands f to the encoder. The session takes ownership of f
// whatever the outcome. Partial frames are dropped and never anchor the
// timeline.
func (s *Session) AppendVideoFrame(f *capture.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable() {
		f.Release()
		return ErrFinalized
	}
	if f.Status != capture.StatusComplete {
		s.stats.VideoDropped++
		f.Release()
		return ErrIncompleteFrame
	}
	if !s.muxer.VideoReady() {
		s.stats.VideoDropped++
		f.Release()
		return ErrNotReady
	}
	if !s.anchored {
		s.muxer.StartSession(f.PTS)
		s.anchor = f.PTS
		s.anchored = true
		s.state = StateWriting
		s.log.Debug().Dur("anchor", f.PTS).Msg("writer session anchored")
	}
	if err := s.muxer.AppendVideo(f); err != nil {
		s.stats.VideoDropped++
		return err
	}
	s.stats.VideoAppended++
	return nil
}

// AppendAudioSample hands a microphone chunk to the encoder. Chunks that end
// before the anchor are dropped.
func (s *Session) AppendAudioSample(a *capture.AudioSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable() {
		return ErrFinalized
	}
	if !s.audio {
		return ErrNoAudioTrack
	}
	if !s.anchored || a.PTS+a.Duration() <= s.anchor {
		s.stats.AudioDropped++
		return ErrNotAnchored
	}
	if !s.muxer.AudioReady() {
		s.stats.AudioDropped++
		return ErrNotReady
	}
	if err := s.muxer.AppendAudio(a); err != nil {
		s.stats.AudioDropped++
		return err
	}
	s.stats.AudioAppended++
	return nil
}

// Finalize marks both tracks finished and waits for the container to be
// closed. It runs once; concurrent and later callers wait for the first call
// and get its result. Cancelling ctx does not interrupt it. A session that
// never received a video frame has nothing to keep: its output is removed
// and ErrEmpty returned.
func (s *Session) Finalize(ctx context.Context) error {
	s.mu.Lock()
	if !s.writable() {
		s.mu.Unlock()
		<-s.finalized
		return s.finalizeErr
	}
	s.state = StateFinalizing
	anchored := s.anchored
	stats := s.stats
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FinalizeTimeout)
	defer cancel()

	start := time.Now()
	var err error
	if anchored {
		s.muxer.MarkVideoFinished()
		if s.audio {
			s.muxer.MarkAudioFinished()
		}
		err = s.muxer.Finish(ctx)
	} else {
		err = errors.Join(ErrEmpty, s.muxer.Abort())
	}
	s.log.Info().
		Err(err).
		Dur("took", time.Since(start)).
		Uint64("video_frames", stats.VideoAppended).
		Uint64("video_dropped", stats.VideoDropped).
		Uint64("audio_chunks", stats.AudioAppended).
		Msg("writer session finalized")

	s.finish(err)
	return err
}

// Abort discards the output. It is used when a recording fails to start.
func (s *Session) Abort() error {
	s.mu.Lock()
	if !s.writable() {
		s.mu.Unlock()
		<-s.finalized
		return nil
	}
	s.state = StateFinalizing
	s.mu.Unlock()

	err := s.muxer.Abort()
	s.finish(ErrFinalized)
	return err
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	s.state = StateFinalized
	s.finalizeErr = err
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.finalized) })
}
