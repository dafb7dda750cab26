package writer

import (
	"sync"
	"sync/atomic"
)

// track is a bounded hand-off between a producer callback and the goroutine
// that feeds the encoder. Pushes never block; a full queue means the track
// is not ready.
type track[T any] struct {
	mu       sync.Mutex
	queue    chan T
	finished bool

	dropped atomic.Uint64
}

func newTrack[T any](size int) *track[T] {
	if size <= 0 {
		size = 1
	}
	return &track[T]{queue: make(chan T, size)}
}

func (t *track[T]) ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.finished && len(t.queue) < cap(t.queue)
}

func (t *track[T]) push(v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		t.dropped.Add(1)
		return ErrTrackFinished
	}
	select {
	case t.queue <- v:
		return nil
	default:
		t.dropped.Add(1)
		return ErrNotReady
	}
}

// finish closes the queue; the consumer drains what is left.
func (t *track[T]) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished {
		t.finished = true
		close(t.queue)
	}
}
