package ltc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// demodulate reads one frame back out of its samples by comparing the two
// half-cells of every bit.
func demodulate(samples []float32) Frame {
	var f Frame
	n := len(samples)
	cell := func(k int) float32 {
		lo, hi := k*n/halfCells, (k+1)*n/halfCells
		return samples[(lo+hi)/2]
	}
	for i := 0; i < FrameBits; i++ {
		if cell(2*i) != cell(2*i+1) {
			f.setBit(i, 1)
		}
	}
	return f
}

func TestModulate_Transitions(t *testing.T) {
	f, err := Assemble(tc(1, 30, 45, 10), FrameOptions{Rate: Rate30})
	require.NoError(t, err)

	dst := make([]float32, 1600)
	end := Modulator{Amplitude: 1}.Modulate(dst, f, LevelHigh)
	assert.Equal(t, LevelHigh, end)
	assert.Equal(t, float32(1), dst[0])

	for i := 0; i < FrameBits; i++ {
		start, mid := i*20, i*20+10
		if i > 0 {
			assert.NotEqual(t, dst[start-1], dst[start], "bit %d must start with a transition", i)
		}
		assert.Equal(t, f.Bit(i) == 1, dst[mid-1] != dst[mid], "mid-bit transition of bit %d", i)
	}

	transitions := 0
	for i := 1; i < len(dst); i++ {
		if dst[i] != dst[i-1] {
			transitions++
		}
	}
	assert.Equal(t, FrameBits-1+f.Ones(), transitions)
}

func TestModulate_FractionalFrameLength(t *testing.T) {
	f, err := Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: Rate2997})
	require.NoError(t, err)

	for _, n := range []int{1601, 1602, 800, 801, 160} {
		dst := make([]float32, n)
		Modulator{Amplitude: 0.5}.Modulate(dst, f, LevelLow)
		for i, v := range dst {
			require.True(t, v == 0.5 || v == -0.5, "sample %d of %d is %v", i, n, v)
		}
		assert.Equal(t, float32(-0.5), dst[0])
		assert.Equal(t, f, demodulate(dst), "length %d", n)
	}
}

func TestEndLevel(t *testing.T) {
	var odd Frame
	odd.setBit(3, 1)
	dst := make([]float32, 320)

	for _, f := range []Frame{{}, odd} {
		for _, start := range []Level{LevelHigh, LevelLow} {
			got := Modulator{Amplitude: 1}.Modulate(dst, f, start)
			assert.Equal(t, got, EndLevel(f, start))
		}
	}
	assert.Equal(t, LevelHigh, EndLevel(Frame{}, LevelHigh))
	assert.Equal(t, LevelLow, EndLevel(odd, LevelHigh))
}
