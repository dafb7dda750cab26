package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/capture"
)

func newTestSession(audio bool) (*Session, *stubMuxer) {
	m := newStubMuxer()
	return NewSession("/tmp/out.mp4", m, audio, zerolog.Nop()), m
}

func TestSessionFirstFrameAnchors(t *testing.T) {
	s, m := newTestSession(false)
	assert.Equal(t, StateCreated, s.State())

	require.NoError(t, s.AppendVideoFrame(frameAt(1500*time.Millisecond)))
	require.NoError(t, s.AppendVideoFrame(frameAt(1533*time.Millisecond)))

	anchor, ok := s.Anchor()
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, anchor)
	assert.Equal(t, StateWriting, s.State())

	got := m.snapshot()
	assert.Equal(t, 1, got.startCalls)
	assert.Equal(t, anchor, got.startAt)
	assert.Equal(t, got.video[0], got.startAt)
}

func TestSessionPartialFrameDoesNotAnchor(t *testing.T) {
	s, m := newTestSession(false)

	partial := frameAt(time.Second)
	partial.Status = capture.StatusPartial
	require.ErrorIs(t, s.AppendVideoFrame(partial), ErrIncompleteFrame)

	_, ok := s.Anchor()
	assert.False(t, ok)
	assert.Equal(t, StateCreated, s.State())
	assert.Empty(t, m.snapshot().video)

	require.NoError(t, s.AppendVideoFrame(frameAt(2*time.Second)))
	anchor, _ := s.Anchor()
	assert.Equal(t, 2*time.Second, anchor)
	assert.Equal(t, uint64(1), s.Stats().VideoDropped)
}

func TestSessionRespectsBackPressure(t *testing.T) {
	s, m := newTestSession(true)
	m.setReady(false, false)

	assert.False(t, s.VideoReady())
	require.ErrorIs(t, s.AppendVideoFrame(frameAt(0)), ErrNotReady)
	_, ok := s.Anchor()
	assert.False(t, ok, "rejected frame must not anchor")

	m.setReady(true, false)
	require.NoError(t, s.AppendVideoFrame(frameAt(10*time.Millisecond)))
	assert.False(t, s.AudioReady())
	require.ErrorIs(t, s.AppendAudioSample(sampleAt(20*time.Millisecond)), ErrNotReady)

	got := m.snapshot()
	assert.Zero(t, got.violations)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, got.video)
	assert.Empty(t, got.audio)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.VideoDropped)
	assert.Equal(t, uint64(1), stats.AudioDropped)
}

func TestSessionAudioBeforeAnchorIsDropped(t *testing.T) {
	s, m := newTestSession(true)

	require.ErrorIs(t, s.AppendAudioSample(sampleAt(0)), ErrNotAnchored)
	assert.False(t, s.AudioReady())

	require.NoError(t, s.AppendVideoFrame(frameAt(100*time.Millisecond)))
	// Ends at 60ms, before the anchor.
	require.ErrorIs(t, s.AppendAudioSample(sampleAt(40*time.Millisecond)), ErrNotAnchored)
	// Straddles the anchor; the muxer trims the head.
	require.NoError(t, s.AppendAudioSample(sampleAt(90*time.Millisecond)))
	require.NoError(t, s.AppendAudioSample(sampleAt(110*time.Millisecond)))

	assert.Equal(t, []time.Duration{90 * time.Millisecond, 110 * time.Millisecond}, m.snapshot().audio)
	assert.Equal(t, uint64(2), s.Stats().AudioDropped)
}

func TestSessionWithoutAudioTrack(t *testing.T) {
	s, _ := newTestSession(false)
	require.NoError(t, s.AppendVideoFrame(frameAt(0)))
	assert.False(t, s.AudioReady())
	require.ErrorIs(t, s.AppendAudioSample(sampleAt(0)), ErrNoAudioTrack)
}

func TestSessionFinalizeOnce(t *testing.T) {
	s, m := newTestSession(true)
	m.finishDelay = 50 * time.Millisecond
	require.NoError(t, s.AppendVideoFrame(frameAt(0)))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Finalize(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got := m.snapshot()
	assert.Equal(t, 1, got.finishCalls)
	assert.True(t, got.videoFinished)
	assert.True(t, got.audioFinished)
	assert.Equal(t, StateFinalized, s.State())

	require.ErrorIs(t, s.AppendVideoFrame(frameAt(time.Second)), ErrFinalized)
	require.ErrorIs(t, s.AppendAudioSample(sampleAt(time.Second)), ErrFinalized)
	assert.False(t, s.VideoReady())
}

func TestSessionFinalizeIgnoresCancellation(t *testing.T) {
	s, m := newTestSession(false)
	m.finishDelay = 20 * time.Millisecond
	require.NoError(t, s.AppendVideoFrame(frameAt(0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Finalize(ctx))
	assert.Equal(t, StateFinalized, s.State())
}

func TestSessionFinalizeReportsMuxerError(t *testing.T) {
	s, m := newTestSession(false)
	m.finishErr = errors.New("disk full")
	require.NoError(t, s.AppendVideoFrame(frameAt(0)))

	err := s.Finalize(context.Background())
	require.EqualError(t, err, "disk full")
	assert.Equal(t, StateFinalized, s.State())
	assert.EqualError(t, s.Finalize(context.Background()), "disk full")
}

func TestSessionFinalizeWithoutFrames(t *testing.T) {
	s, m := newTestSession(false)

	err := s.Finalize(context.Background())
	require.ErrorIs(t, err, ErrEmpty)

	got := m.snapshot()
	assert.Equal(t, 0, got.finishCalls)
	assert.Equal(t, 1, got.abortCalls)
}

func TestSessionAbort(t *testing.T) {
	s, m := newTestSession(true)
	require.NoError(t, s.Abort())
	require.NoError(t, s.Abort())

	assert.Equal(t, StateFinalized, s.State())
	assert.Equal(t, 1, m.snapshot().abortCalls)
	require.ErrorIs(t, s.AppendVideoFrame(frameAt(0)), ErrFinalized)
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after abort")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "writing", StateWriting.String())
	assert.Equal(t, "finalizing", StateFinalizing.String())
	assert.Equal(t, "finalized", StateFinalized.String())
	assert.Equal(t, "unknown", State(42).String())
}
