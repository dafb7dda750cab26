package writer

import (
	"math"
	"time"
)

// slotClock maps source timestamps onto the slots of a constant frame rate
// output. next is the number of frames written so far.
type slotClock struct {
	fps  int
	next int64
}

// place returns how many times the previous frame has to be repeated before
// a frame at offset (relative to the anchor) is written. ok is false when
// the frame falls on a slot that is already filled. Repeats are capped at
// one second per call; a longer gap is closed over the following frames.
func (c *slotClock) place(offset time.Duration) (repeats int, ok bool) {
	slot := int64(math.Round(offset.Seconds() * float64(c.fps)))
	if slot < c.next {
		return 0, false
	}
	gap := min(slot-c.next, int64(c.fps))
	c.next += gap + 1
	return int(gap), true
}

// audioTimeline tracks how much PCM has been written to the encoder and
// lines incoming chunks up with their timestamps.
type audioTimeline struct {
	bytesPerSecond int64
	blockAlign     int64
	written        int64
}

const audioGapTolerance = 40 * time.Millisecond

func newAudioTimeline(sampleRate, channels int) *audioTimeline {
	align := int64(channels * 2)
	return &audioTimeline{
		bytesPerSecond: int64(sampleRate) * align,
		blockAlign:     align,
	}
}

func (t *audioTimeline) bytesAt(d time.Duration) int64 {
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	n := sec*t.bytesPerSecond + rem*t.bytesPerSecond/int64(time.Second)
	return n - n%t.blockAlign
}

// elapsed is the playback time of everything written so far.
func (t *audioTimeline) elapsed() time.Duration {
	sec := t.written / t.bytesPerSecond
	rem := t.written % t.bytesPerSecond
	return time.Duration(sec)*time.Second + time.Duration(rem)*time.Second/time.Duration(t.bytesPerSecond)
}

// place returns how many bytes of silence to write before a chunk of n bytes
// stamped at offset, and how many leading bytes of the chunk are already
// covered and must be skipped. Silence is capped at one second.
func (t *audioTimeline) place(offset time.Duration, n int) (pad, skip int) {
	pos := t.bytesAt(offset)
	switch {
	case pos > t.written+t.bytesAt(audioGapTolerance):
		pad = int(min(pos-t.written, t.bytesPerSecond))
	case pos < t.written:
		behind := t.written - pos
		skip = int(min(behind-behind%t.blockAlign, int64(n)))
	}
	t.written += int64(pad + n - skip)
	return pad, skip
}

// advance records bytes written outside place, such as stall silence.
func (t *audioTimeline) advance(n int) {
	t.written += int64(n)
}
