// Package preview serves a low-rate JPEG preview of what is being recorded
// and a small HTTP control surface for the recorder.
package preview

import (
	"sync"
	"time"

	"go2tv.app/screenrec/capture"
)

// Slot keeps a copy of the most recently written video frame. Producers call
// Offer from the capture path; it never waits for a reader.
type Slot struct {
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	frame *capture.Frame
	last  time.Time
	seq   uint64
}

// NewSlot returns a slot that keeps at most one frame per interval.
func NewSlot(interval time.Duration) *Slot {
	return &Slot{interval: interval, now: time.Now}
}

// Offer copies f into the slot. It returns false without copying when a
// reader holds the slot or the last copy is younger than the interval.
func (s *Slot) Offer(f *capture.Frame) bool {
	if !f.Valid() {
		return false
	}
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	now := s.now()
	if s.frame != nil && s.interval > 0 && now.Sub(s.last) < s.interval {
		return false
	}
	if s.frame != nil && s.frame.Width == f.Width && s.frame.Height == f.Height &&
		s.frame.Stride == f.Stride && len(s.frame.Pix) == len(f.Pix) {
		copy(s.frame.Pix, f.Pix)
		s.frame.PTS = f.PTS
	} else {
		s.frame = f.Clone()
	}
	s.last = now
	s.seq++
	return true
}

// View calls fn with the stored frame while holding the slot. fn must not
// retain the frame. It reports false when nothing has been offered yet.
func (s *Slot) View(fn func(f *capture.Frame, seq uint64)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return false
	}
	fn(s.frame, s.seq)
	return true
}

// Seq increments with every accepted frame.
func (s *Slot) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset drops the stored frame.
func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = nil
}
