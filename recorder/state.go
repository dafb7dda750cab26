package recorder

import (
	"sync"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/compositor"
	"go2tv.app/screenrec/writer"
)

// FrameState is what the producer callbacks share: the latest camera frame
// and the writer of the active recording. Both sit behind one mutex that is
// only ever held to read or swap references, never across compositing or
// encoding.
type FrameState struct {
	mu sync.Mutex

	camera     *capture.Frame
	writer     *writer.Session
	compositor *compositor.Compositor
	overlay    compositor.OverlayConfig
}

// frameSnapshot is a consistent view of FrameState taken under its lock.
type frameSnapshot struct {
	camera     *capture.Frame
	writer     *writer.Session
	compositor *compositor.Compositor
	overlay    compositor.OverlayConfig
}

// SetLatestCameraFrame stores a private copy of f. Camera sources reuse
// their read buffer, so the copy is taken before the swap and outside the
// lock. Stored frames are never modified afterwards; readers may use them
// without holding the lock.
func (s *FrameState) SetLatestCameraFrame(f *capture.Frame) {
	if !f.Valid() {
		return
	}
	c := f.Clone()
	s.mu.Lock()
	s.camera = c
	s.mu.Unlock()
}

// LatestCameraFrame returns the most recent camera frame, or nil.
func (s *FrameState) LatestCameraFrame() *capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// Attach installs the writer of a starting recording.
func (s *FrameState) Attach(w *writer.Session, c *compositor.Compositor, overlay compositor.OverlayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
	s.compositor = c
	s.overlay = overlay
}

// Detach removes the writer and drops the cached camera frame. Callbacks
// that already took a snapshot may still append once; later callbacks see
// no writer and return.
func (s *FrameState) Detach() *writer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.writer
	s.writer = nil
	s.compositor = nil
	s.overlay = compositor.OverlayConfig{}
	s.camera = nil
	return w
}

// Writer returns the attached writer, or nil.
func (s *FrameState) Writer() *writer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer
}

func (s *FrameState) snapshot() frameSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return frameSnapshot{
		camera:     s.camera,
		writer:     s.writer,
		compositor: s.compositor,
		overlay:    s.overlay,
	}
}
