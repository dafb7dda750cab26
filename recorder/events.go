package recorder

import (
	"time"

	"github.com/rs/zerolog"
)

// State is the controller lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventOutputSaved
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventOutputSaved:
		return "output_saved"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to observers after the controller has released its
// locks, in the order the changes happened.
type Event struct {
	Kind        EventKind
	State       State
	RecordingID string
	Path        string
	Err         error
	At          time.Time
}

// Observer receives controller events. Implementations must not call back
// into StartRecording or StopRecording synchronously.
type Observer interface {
	RecorderEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) RecorderEvent(e Event) { f(e) }

// eventQueue collects events under the controller lock and delivers them
// after it has been released.
type eventQueue struct {
	pending []Event
}

func (q *eventQueue) add(e Event) {
	q.pending = append(q.pending, e)
}

func (q *eventQueue) take() []Event {
	out := q.pending
	q.pending = nil
	return out
}

func deliver(obs Observer, log zerolog.Logger, events []Event) {
	if obs == nil {
		return
	}
	for _, e := range events {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", e.Kind.String()).Msg("observer panicked")
				}
			}()
			obs.RecorderEvent(e)
		}()
	}
}
