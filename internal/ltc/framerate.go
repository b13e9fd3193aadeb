package ltc

import (
	"fmt"
	"strings"

	"github.com/zsiec/ltcgen/internal/errors"
)

// Rational represents a rational number (numerator/denominator).
// Used for exact frame rates and sample timing.
type Rational struct {
	Num int64 // Numerator
	Den int64 // Denominator
}

// Float64 returns the floating point representation
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// FrameRate is one of the SMPTE 12M frame rates.
type FrameRate int

const (
	Rate24 FrameRate = iota + 1
	Rate25
	Rate2997
	Rate30
	Rate5994
	Rate60
)

var frameRates = []struct {
	rate     FrameRate
	name     string
	nominal  int
	exact    Rational
	drop     int // frame numbers skipped per drop-frame minute
	pairs    bool
	is25Base bool
}{
	{Rate24, "24", 24, Rational{24, 1}, 0, false, false},
	{Rate25, "25", 25, Rational{25, 1}, 0, false, true},
	{Rate2997, "29.97", 30, Rational{30000, 1001}, 2, false, false},
	{Rate30, "30", 30, Rational{30, 1}, 0, false, false},
	{Rate5994, "59.94", 60, Rational{60000, 1001}, 4, true, false},
	{Rate60, "60", 60, Rational{60, 1}, 0, true, false},
}

// FrameRates lists every supported rate in ascending order.
func FrameRates() []FrameRate {
	out := make([]FrameRate, 0, len(frameRates))
	for _, fr := range frameRates {
		out = append(out, fr.rate)
	}
	return out
}

// ParseFrameRate accepts "24", "25", "29.97", "30", "59.94" or "60".
func ParseFrameRate(s string) (FrameRate, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "fps"))
	for _, fr := range frameRates {
		if fr.name == s {
			return fr.rate, nil
		}
	}
	return 0, errors.NewParseError(fmt.Sprintf("unsupported frame rate %q (want 24, 25, 29.97, 30, 59.94 or 60)", s))
}

// Valid reports whether r is one of the enumerated rates.
func (r FrameRate) Valid() bool {
	return r >= Rate24 && r <= Rate60
}

func (r FrameRate) String() string {
	if !r.Valid() {
		return fmt.Sprintf("FrameRate(%d)", int(r))
	}
	return frameRates[r-1].name
}

// Nominal is the rounded integer frame count per second used for timecode
// arithmetic: 24, 25, 30, 30, 60, 60.
func (r FrameRate) Nominal() int {
	if !r.Valid() {
		return 0
	}
	return frameRates[r-1].nominal
}

// Rational is the exact rate; 29.97 and 59.94 are 30000/1001 and 60000/1001.
func (r FrameRate) Rational() Rational {
	if !r.Valid() {
		return Rational{}
	}
	return frameRates[r-1].exact
}

// Float64 is the real frame rate.
func (r FrameRate) Float64() float64 {
	return r.Rational().Float64()
}

// SupportsDropFrame is true only for 29.97 and 59.94.
func (r FrameRate) SupportsDropFrame() bool {
	return r.DropCount() > 0
}

// DropCount is the number of frame numbers skipped at the start of each
// drop-frame minute: 2 at 29.97, 4 at 59.94, 0 otherwise.
func (r FrameRate) DropCount() int {
	if !r.Valid() {
		return 0
	}
	return frameRates[r-1].drop
}

// FramePairs reports whether the rate is carried as frame pairs (59.94, 60):
// the frame digits hold frames/2 and a flag marks the second frame of a pair.
func (r FrameRate) FramePairs() bool {
	return r.Valid() && frameRates[r-1].pairs
}

func (r FrameRate) is25Base() bool {
	return r.Valid() && frameRates[r-1].is25Base
}
