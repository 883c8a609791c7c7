package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_ReadPadsSilence(t *testing.T) {
	r := NewRing(8)
	r.Write([]int16{1, 2, 3})

	out := make([]int16, 5)
	n := r.Read(out)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int16{1, 2, 3, 0, 0}, out)
	assert.Equal(t, 0, r.Len())
}

func TestRing_OverflowDropsOldest(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1, 2, 3})
	r.Write([]int16{4, 5, 6})

	out := make([]int16, 4)
	assert.Equal(t, 4, r.Read(out))
	assert.Equal(t, []int16{3, 4, 5, 6}, out)
	assert.Equal(t, uint64(2), r.Dropped())
}

func TestRing_WriteLargerThanCapacity(t *testing.T) {
	r := NewRing(3)
	r.Write([]int16{9})
	r.Write([]int16{1, 2, 3, 4, 5})

	out := make([]int16, 3)
	r.Read(out)
	assert.Equal(t, []int16{3, 4, 5}, out)
	assert.Equal(t, uint64(3), r.Dropped())
}

func TestApplyGain_Clips(t *testing.T) {
	s := []int16{1000, -1000, 30000, -30000}
	ApplyGain(s, 2)
	assert.Equal(t, []int16{2000, -2000, math.MaxInt16, math.MinInt16}, s)

	u := []int16{5, -5}
	ApplyGain(u, 0)
	assert.Equal(t, []int16{5, -5}, u)
}

func TestSampleBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	b := make([]byte, 2*len(in))
	SamplesToBytes(b, in)
	assert.Equal(t, in, BytesToSamples(nil, b))
}
