package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWriteReadRoundTrip(t *testing.T) {
	r := NewRing(4)
	require.Equal(t, 4, r.Capacity())

	for i := 0; i < 4; i++ {
		rec := RawSample{ThreadID: int64(i)}
		require.True(t, r.Write(&rec), "Write(%d)", i)
	}
	assert.Equal(t, 4, r.Len())

	var overflow RawSample
	assert.False(t, r.Write(&overflow), "Write on a full ring")
	assert.Equal(t, uint64(1), r.Dropped())

	for i := 0; i < 4; i++ {
		var out RawSample
		require.True(t, r.Read(&out), "Read(%d)", i)
		assert.Equal(t, int64(i), out.ThreadID)
	}

	var empty RawSample
	assert.False(t, r.Read(&empty), "Read on an empty ring")
}

func TestRingCapacityRoundsToPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 2, 1: 2, 3: 4, 5: 8, 16: 16, 17: 32}
	for in, want := range cases {
		assert.Equal(t, want, NewRing(in).Capacity(), "NewRing(%d)", in)
	}
}

func TestRingDrainBatches(t *testing.T) {
	r := NewRing(8)
	for i := 0; i < 5; i++ {
		rec := RawSample{ThreadID: int64(i)}
		require.True(t, r.Write(&rec), "Write(%d)", i)
	}

	out := make([]RawSample, 3)
	n := r.Drain(out)
	require.Equal(t, 3, n)
	for i := 0; i < 3; i++ {
		assert.Equal(t, int64(i), out[i].ThreadID)
	}

	n = r.Drain(out)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, r.Len())
}
