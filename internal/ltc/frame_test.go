package ltc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ltcgen/internal/errors"
)

func TestAssemble_Digits(t *testing.T) {
	f, err := Assemble(tc(1, 30, 45, 10), FrameOptions{Rate: Rate30})
	require.NoError(t, err)

	bits := f.Bits()
	set := map[int]bool{
		8:  true, // frame tens 1
		16: true, // second units 5
		18: true,
		26: true, // second tens 4
		40: true, // minute tens 3
		41: true,
		48: true, // hour units 1
	}
	for i := 0; i < syncStart; i++ {
		if i == layout30.polarity {
			continue
		}
		assert.Equal(t, set[i], bits[i] == 1, "bit %d", i)
	}
}

func TestAssemble_SyncWord(t *testing.T) {
	f, err := Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: Rate25})
	require.NoError(t, err)

	assert.Equal(t, SyncWord, f.SyncWord())
	expected := []uint8{0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1}
	bits := f.Bits()
	assert.Equal(t, expected, bits[64:80])
}

func TestAssemble_EveryRate(t *testing.T) {
	starts := []Timecode{tc(0, 0, 0, 0), tc(12, 34, 56, 7), tc(23, 59, 59, 23), tc(9, 9, 9, 19)}

	for _, rate := range FrameRates() {
		for _, drop := range []bool{false, true} {
			if drop && !rate.SupportsDropFrame() {
				continue
			}
			opts := FrameOptions{Rate: rate, DropFrame: drop, ColorFrame: true}
			t.Run(rate.String(), func(t *testing.T) {
				for _, start := range starts {
					cur := start
					for i := 0; i < 2*rate.Nominal(); i++ {
						f, err := Assemble(cur, opts)
						require.NoError(t, err, "%s", cur)

						assert.Equal(t, SyncWord, f.SyncWord())
						assert.Zero(t, f.Ones()%2, "parity of %s", cur)
						assert.Equal(t, drop, f.DropFrame())
						assert.True(t, f.ColorFrame())

						decoded, err := Decode(f, rate)
						require.NoError(t, err)
						assert.Equal(t, cur, decoded)

						cur = cur.Next(rate, drop)
					}
				}
			})
		}
	}
}

func TestAssemble_PolarityBit(t *testing.T) {
	// Only the sync word is set, 13 ones, so the polarity bit must be raised.
	tests := []struct {
		rate FrameRate
		bit  int
	}{
		{Rate24, 27},
		{Rate30, 27},
		{Rate2997, 27},
		{Rate25, 59},
		{Rate60, 59},
		{Rate5994, 59},
	}

	for _, tt := range tests {
		t.Run(tt.rate.String(), func(t *testing.T) {
			f, err := Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: tt.rate})
			require.NoError(t, err)
			assert.Equal(t, uint8(1), f.Bit(tt.bit))
			assert.Equal(t, 14, f.Ones())
		})
	}
}

func TestAssemble_BinaryGroupFlags(t *testing.T) {
	tests := []struct {
		name  string
		rate  FrameRate
		flags int
		bits  []int
	}{
		{"bgf0 at 30", Rate30, BGF0, []int{43}},
		{"bgf1 at 30", Rate30, BGF1, []int{58}},
		{"bgf2 at 30", Rate30, BGF2, []int{59}},
		{"bgf0 at 25", Rate25, BGF0, []int{27}},
		{"bgf2 at 25", Rate25, BGF2, []int{43}},
		{"bgf1 at 25", Rate25, BGF1, []int{58}},
		{"bgf0 and bgf1 at 60", Rate60, BGF0 | BGF1, []int{43, 58}},
		{"full mask at 30", Rate30, 0xff, []int{43, 58, 59}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ub, err := NewUserBits(UserBitsInput{BinaryGroups: intPtr(tt.flags)})
			require.NoError(t, err)

			f, err := Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: tt.rate, UserBits: ub})
			require.NoError(t, err)
			for _, b := range tt.bits {
				assert.Equal(t, uint8(1), f.Bit(b), "bit %d", b)
			}
			assert.Zero(t, f.Ones()%2)

			// Flag bits 3-7 have no slot in the frame.
			plain, err := NewUserBits(UserBitsInput{BinaryGroups: intPtr(tt.flags & (BGF0 | BGF1 | BGF2))})
			require.NoError(t, err)
			want, err := Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: tt.rate, UserBits: plain})
			require.NoError(t, err)
			assert.Equal(t, want.Bits(), f.Bits())
		})
	}
}

func TestAssemble_FramePairs(t *testing.T) {
	even, err := Assemble(tc(0, 0, 0, 58), FrameOptions{Rate: Rate60})
	require.NoError(t, err)
	odd, err := Assemble(tc(0, 0, 0, 59), FrameOptions{Rate: Rate60})
	require.NoError(t, err)

	assert.Equal(t, 9, even.get(0, 4))
	assert.Equal(t, 2, even.get(8, 2))
	assert.Equal(t, uint8(0), even.Bit(layoutPairs.pair))
	assert.Equal(t, 9, odd.get(0, 4))
	assert.Equal(t, 2, odd.get(8, 2))
	assert.Equal(t, uint8(1), odd.Bit(layoutPairs.pair))

	ub, err := NewUserBits(UserBitsInput{BinaryGroups: intPtr(BGF2)})
	require.NoError(t, err)
	_, err = Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: Rate5994, UserBits: ub})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestAssemble_UserBits(t *testing.T) {
	ub, err := NewUserBits(UserBitsInput{Groups: groupsPtr(0xde, 0xad, 0xbe, 0xef), Field1: intPtr(3)})
	require.NoError(t, err)

	f, err := Assemble(tc(10, 0, 0, 0), FrameOptions{Rate: Rate24, UserBits: ub})
	require.NoError(t, err)
	assert.Equal(t, ub.Nibbles(), DecodeUserBits(f))
	assert.Equal(t, [8]uint8{3, 0xd, 0xd, 0xa, 0xe, 0xb, 0xf, 0xe}, DecodeUserBits(f))

	decoded, err := Decode(f, Rate24)
	require.NoError(t, err)
	assert.Equal(t, tc(10, 0, 0, 0), decoded)
}

func TestAssemble_Errors(t *testing.T) {
	tests := []struct {
		name    string
		tc      Timecode
		opts    FrameOptions
		errType errors.ErrorType
	}{
		{"unknown rate", tc(0, 0, 0, 0), FrameOptions{}, errors.ErrorTypeValidation},
		{"drop at 25", tc(0, 0, 0, 0), FrameOptions{Rate: Rate25, DropFrame: true}, errors.ErrorTypeConfig},
		{"drop at 60", tc(0, 0, 0, 0), FrameOptions{Rate: Rate60, DropFrame: true}, errors.ErrorTypeConfig},
		{"frames out of range", tc(0, 0, 0, 24), FrameOptions{Rate: Rate24}, errors.ErrorTypeValidation},
		{"dropped frame number", tc(0, 3, 0, 0), FrameOptions{Rate: Rate2997, DropFrame: true}, errors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Assemble(tt.tc, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.errType, errors.TypeOf(err))
			assert.Equal(t, Frame{}, f)
		})
	}
}

func TestDecode_BadSync(t *testing.T) {
	_, err := Decode(Frame{}, Rate30)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
}

func TestFrame_Strings(t *testing.T) {
	f, err := Assemble(tc(0, 0, 0, 0), FrameOptions{Rate: Rate30})
	require.NoError(t, err)

	assert.Len(t, f.Hex(), 20)
	s := f.String()
	assert.Len(t, s, FrameBits+7)
	assert.Equal(t, "0011111111111101", s[70:76]+s[77:])
}
