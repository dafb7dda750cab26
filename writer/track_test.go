package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackBackPressure(t *testing.T) {
	tr := newTrack[int](1)
	assert.True(t, tr.ready())

	require.NoError(t, tr.push(1))
	assert.False(t, tr.ready())
	require.ErrorIs(t, tr.push(2), ErrNotReady)
	assert.Equal(t, uint64(1), tr.dropped.Load())

	assert.Equal(t, 1, <-tr.queue)
	assert.True(t, tr.ready())
}

func TestTrackFinish(t *testing.T) {
	tr := newTrack[int](4)
	require.NoError(t, tr.push(1))
	tr.finish()
	tr.finish()

	assert.False(t, tr.ready())
	require.ErrorIs(t, tr.push(2), ErrTrackFinished)

	var drained []int
	for v := range tr.queue {
		drained = append(drained, v)
	}
	assert.Equal(t, []int{1}, drained)
}
