package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/compositor"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/writer"
)

// RecordingSession owns everything acquired for one recording.
type RecordingSession struct {
	ID        string
	Request   StartRequest
	Settings  config.Settings
	Overlay   compositor.OverlayConfig
	StartedAt time.Time
	TempDir   string
	TempPath  string
	Writer    *writer.Session

	screen     capture.ScreenSource
	microphone capture.Source
	camera     capture.Source
	log        zerolog.Logger

	failures chan error
	stopped  chan struct{}
	stopOnce sync.Once
}

func newRecordingSession(id string, req StartRequest, settings config.Settings, startedAt time.Time, log zerolog.Logger) *RecordingSession {
	return &RecordingSession{
		ID:        id,
		Request:   req,
		Settings:  settings,
		Overlay:   settings.Overlay(req.Target.Scale),
		StartedAt: startedAt,
		log:       log,
		failures:  make(chan error, 1),
		stopped:   make(chan struct{}),
	}
}

// reportFailure records the first terminal stream error. Later errors are
// logged only; one failure is enough to stop.
func (s *RecordingSession) reportFailure(source string, err error) {
	s.log.Error().Err(err).Str("source", source).Msg("capture stream failed")
	select {
	case s.failures <- fmt.Errorf("%s capture: %w", source, err):
	default:
	}
}

func (s *RecordingSession) markStopped() {
	s.stopOnce.Do(func() { close(s.stopped) })
}
