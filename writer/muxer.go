// Package writer turns composited frames and microphone PCM into an MP4
// file: a Muxer does the encoding, a Session enforces the recording
// timeline on top of it.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go2tv.app/screenrec/capture"
)

var (
	ErrNotAnchored     = errors.New("audio sample precedes the first video frame")
	ErrIncompleteFrame = errors.New("screen frame is incomplete")
	ErrFinalized       = errors.New("writer session is finalized")
	ErrTrackFinished   = errors.New("track is marked finished")
	ErrNotReady        = errors.New("track is not ready for more data")
	ErrNoAudioTrack    = errors.New("session has no audio track")
	ErrEmpty           = errors.New("no video frames were written")
)

// Muxer is the encoder/container primitive. Appends never block: when a
// track is not ready the sample is rejected with ErrNotReady. Appended
// frames are owned by the muxer, which releases them once encoded or
// rejected.
type Muxer interface {
	// StartSession sets the source time that maps to zero in the output.
	StartSession(at time.Duration)

	VideoReady() bool
	AppendVideo(f *capture.Frame) error
	AudioReady() bool
	AppendAudio(s *capture.AudioSample) error

	MarkVideoFinished()
	MarkAudioFinished()

	// Finish flushes queued samples and closes the container.
	Finish(ctx context.Context) error
	// Abort stops encoding and removes the partial output.
	Abort() error

	// Err returns the first fatal error, if any.
	Err() error
	// Done is closed on the first fatal error or once the muxer stopped.
	// After a fatal error Finish still closes the file properly.
	Done() <-chan struct{}
}

// Quality is the bitrate tier of the encoded video.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	case "":
		return QualityMedium, nil
	default:
		return "", fmt.Errorf("unknown quality %q", s)
	}
}

// Bitrate is the target video bitrate in kbit/s.
func (q Quality) Bitrate() int {
	switch q {
	case QualityLow:
		return 2500
	case QualityHigh:
		return 8000
	default:
		return 5000
	}
}
