package ltc

import (
	"encoding/hex"
	"fmt"
	"math/bits"
	"strings"

	"github.com/zsiec/ltcgen/internal/errors"
)

const (
	// FrameBits is the length of every LTC frame.
	FrameBits = 80

	// SyncWord occupies bits 64-79, read in transmission order: 0011 1111 1111 1101.
	SyncWord uint16 = 0x3FFD

	syncStart     = 64
	dropFlagBit   = 10
	colorFlagBit  = 11
	userBitsStart = 4
	userBitsPitch = 8
)

// flagLayout places the rate-dependent flag bits; -1 means not carried.
type flagLayout struct {
	polarity int
	bgf0     int
	bgf1     int
	bgf2     int
	pair     int
}

var (
	layout30    = flagLayout{polarity: 27, bgf0: 43, bgf1: 58, bgf2: 59, pair: -1}
	layout25    = flagLayout{polarity: 59, bgf0: 27, bgf1: 58, bgf2: 43, pair: -1}
	layoutPairs = flagLayout{polarity: 59, bgf0: 43, bgf1: 58, bgf2: -1, pair: 27}
)

func layoutFor(rate FrameRate) flagLayout {
	switch {
	case rate.is25Base():
		return layout25
	case rate.FramePairs():
		return layoutPairs
	default:
		return layout30
	}
}

// Frame is one 80-bit LTC frame. Bit i is the i-th bit on the wire and is
// stored at byte i/8, bit i%8.
type Frame [FrameBits / 8]byte

// Bit returns bit i (0 or 1).
func (f Frame) Bit(i int) uint8 {
	return (f[i/8] >> (i % 8)) & 1
}

func (f *Frame) setBit(i int, v uint8) {
	if v&1 == 1 {
		f[i/8] |= 1 << (i % 8)
	} else {
		f[i/8] &^= 1 << (i % 8)
	}
}

// put writes width bits of v starting at bit start, least significant first.
func (f *Frame) put(start, width int, v int) {
	for i := 0; i < width; i++ {
		f.setBit(start+i, uint8(v>>i))
	}
}

func (f Frame) get(start, width int) int {
	v := 0
	for i := 0; i < width; i++ {
		v |= int(f.Bit(start+i)) << i
	}
	return v
}

// Bits returns the frame in transmission order.
func (f Frame) Bits() [FrameBits]uint8 {
	var out [FrameBits]uint8
	for i := range out {
		out[i] = f.Bit(i)
	}
	return out
}

// SyncWord reads bits 64-79 with bit 64 as the most significant bit.
func (f Frame) SyncWord() uint16 {
	var w uint16
	for i := 0; i < 16; i++ {
		w = w<<1 | uint16(f.Bit(syncStart+i))
	}
	return w
}

// Ones counts the 1 bits in the frame.
func (f Frame) Ones() int {
	n := 0
	for _, b := range f {
		n += bits.OnesCount8(b)
	}
	return n
}

func (f Frame) DropFrame() bool  { return f.Bit(dropFlagBit) == 1 }
func (f Frame) ColorFrame() bool { return f.Bit(colorFlagBit) == 1 }

// Hex renders the frame bytes in storage order.
func (f Frame) Hex() string {
	return hex.EncodeToString(f[:])
}

// String renders the bits in transmission order as eight 10-bit groups.
func (f Frame) String() string {
	var sb strings.Builder
	for i := 0; i < FrameBits; i++ {
		if i > 0 && i%10 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('0' + f.Bit(i))
	}
	return sb.String()
}

// FrameOptions is everything besides the timecode that shapes a frame.
type FrameOptions struct {
	Rate       FrameRate
	DropFrame  bool
	ColorFrame bool
	UserBits   UserBits
}

// Assemble builds the frame for tc. All inputs are validated first; nothing
// out of range is clamped.
func Assemble(tc Timecode, opts FrameOptions) (Frame, error) {
	var f Frame

	if !opts.Rate.Valid() {
		return f, errors.Validationf("unsupported frame rate %d", int(opts.Rate))
	}
	if opts.DropFrame && !opts.Rate.SupportsDropFrame() {
		return f, errors.NewConfigError(fmt.Sprintf("drop-frame is not defined for %s fps", opts.Rate))
	}
	if err := tc.Validate(opts.Rate, opts.DropFrame); err != nil {
		return f, err
	}

	layout := layoutFor(opts.Rate)
	flags := opts.UserBits.BinaryGroups()
	if flags&BGF2 != 0 && layout.bgf2 < 0 {
		return f, errors.NewConfigError(fmt.Sprintf("binary group flag 2 cannot be carried at %s fps", opts.Rate))
	}

	frameNumber, second := tc.Frames, 0
	if opts.Rate.FramePairs() {
		frameNumber, second = tc.Frames/2, tc.Frames%2
	}

	f.put(0, 4, frameNumber%10)
	f.put(8, 2, frameNumber/10)
	f.put(16, 4, tc.Seconds%10)
	f.put(24, 3, tc.Seconds/10)
	f.put(32, 4, tc.Minutes%10)
	f.put(40, 3, tc.Minutes/10)
	f.put(48, 4, tc.Hours%10)
	f.put(56, 2, tc.Hours/10)

	for i, n := range opts.UserBits.Nibbles() {
		f.put(userBitsStart+i*userBitsPitch, 4, int(n))
	}

	if opts.DropFrame {
		f.setBit(dropFlagBit, 1)
	}
	if opts.ColorFrame {
		f.setBit(colorFlagBit, 1)
	}
	if flags&BGF0 != 0 {
		f.setBit(layout.bgf0, 1)
	}
	if flags&BGF1 != 0 {
		f.setBit(layout.bgf1, 1)
	}
	if flags&BGF2 != 0 {
		f.setBit(layout.bgf2, 1)
	}
	if layout.pair >= 0 {
		f.setBit(layout.pair, uint8(second))
	}

	f.put(syncStart, 16, int(bits.Reverse16(SyncWord)))

	// Even parity keeps every frame starting on the same level.
	if f.Ones()%2 == 1 {
		f.setBit(layout.polarity, 1)
	}
	return f, nil
}

// Decode reads the timecode digits back out of f.
func Decode(f Frame, rate FrameRate) (Timecode, error) {
	if !rate.Valid() {
		return Timecode{}, errors.Validationf("unsupported frame rate %d", int(rate))
	}
	if w := f.SyncWord(); w != SyncWord {
		return Timecode{}, errors.NewParseError(fmt.Sprintf("frame has sync word %#04x, want %#04x", w, SyncWord))
	}

	frames := f.get(8, 2)*10 + f.get(0, 4)
	if rate.FramePairs() {
		frames = frames*2 + int(f.Bit(layoutPairs.pair))
	}
	return Timecode{
		Hours:   f.get(56, 2)*10 + f.get(48, 4),
		Minutes: f.get(40, 3)*10 + f.get(32, 4),
		Seconds: f.get(24, 3)*10 + f.get(16, 4),
		Frames:  frames,
	}, nil
}

// DecodeUserBits returns the eight user nibbles of f.
func DecodeUserBits(f Frame) [8]uint8 {
	var n [8]uint8
	for i := range n {
		n[i] = uint8(f.get(userBitsStart+i*userBitsPitch, 4))
	}
	return n
}
