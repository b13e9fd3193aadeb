package ltc

// Level is the signal polarity, +1 or -1.
type Level int8

const (
	LevelHigh Level = 1
	LevelLow  Level = -1
)

// halfCells is the number of half-bit cells in a frame.
const halfCells = 2 * FrameBits

// Modulator renders frames as biphase mark code.
type Modulator struct {
	Amplitude float32
}

// Modulate fills dst with one frame. len(dst) is the frame's share of the
// sample stream; cell k of the 160 half-bit cells ends at sample
// k*len(dst)/160, so fractional samples per bit are carried forward instead
// of being dropped. Every bit starts with a level change and a 1 bit changes
// level again at its midpoint. start is the level of the first half of bit 0;
// the returned level is where the next frame must start.
func (m Modulator) Modulate(dst []float32, f Frame, start Level) Level {
	n := len(dst)
	level := start
	lo := 0
	for k := 0; k < halfCells; k++ {
		hi := (k + 1) * n / halfCells
		v := m.Amplitude * float32(level)
		for i := lo; i < hi; i++ {
			dst[i] = v
		}
		lo = hi

		if k%2 == 1 || f.Bit(k/2) == 1 {
			level = -level
		}
	}
	return level
}

// EndLevel is the level Modulate returns for f without rendering it.
func EndLevel(f Frame, start Level) Level {
	if (FrameBits+f.Ones())%2 == 1 {
		return -start
	}
	return start
}
