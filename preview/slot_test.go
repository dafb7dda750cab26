package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/capture"
)

func TestSlotKeepsCopy(t *testing.T) {
	s := NewSlot(0)
	assert.False(t, s.View(func(*capture.Frame, uint64) {}))

	f := capture.NewFrame(2, 2)
	f.Pix[0] = 1
	require.True(t, s.Offer(f))
	f.Pix[0] = 2

	ok := s.View(func(got *capture.Frame, seq uint64) {
		assert.NotSame(t, f, got)
		assert.Equal(t, byte(1), got.Pix[0])
		assert.Equal(t, uint64(1), seq)
	})
	assert.True(t, ok)
}

func TestSlotInterval(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewSlot(200 * time.Millisecond)
	s.now = func() time.Time { return now }

	f := capture.NewFrame(2, 2)
	assert.True(t, s.Offer(f))
	now = now.Add(100 * time.Millisecond)
	assert.False(t, s.Offer(f))
	now = now.Add(100 * time.Millisecond)
	assert.True(t, s.Offer(f))
	assert.Equal(t, uint64(2), s.Seq())
}

func TestSlotOfferNeverWaitsForReader(t *testing.T) {
	s := NewSlot(0)
	require.True(t, s.Offer(capture.NewFrame(2, 2)))

	s.View(func(*capture.Frame, uint64) {
		assert.False(t, s.Offer(capture.NewFrame(2, 2)))
	})
	assert.Equal(t, uint64(1), s.Seq())
}

func TestSlotResizesAndResets(t *testing.T) {
	s := NewSlot(0)
	require.True(t, s.Offer(capture.NewFrame(2, 2)))
	require.True(t, s.Offer(capture.NewFrame(4, 2)))
	s.View(func(f *capture.Frame, _ uint64) {
		assert.Equal(t, 4, f.Width)
	})
	assert.False(t, s.Offer(nil))

	s.Reset()
	assert.False(t, s.View(func(*capture.Frame, uint64) {}))
}
