package ltc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/ltcgen/internal/errors"
)

// Timecode is an hours:minutes:seconds:frames value. It carries no rate;
// every operation that depends on one takes it explicitly.
type Timecode struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
	Frames  int `json:"frames"`
}

// Validate checks every field against its range for the given rate. In
// drop-frame mode the skipped frame numbers at the start of a minute not
// divisible by ten are rejected as well.
func (tc Timecode) Validate(rate FrameRate, drop bool) error {
	if !rate.Valid() {
		return errors.Validationf("unsupported frame rate %d", int(rate))
	}
	if drop && !rate.SupportsDropFrame() {
		return errors.NewConfigError(fmt.Sprintf("drop-frame is not defined for %s fps", rate))
	}

	switch {
	case tc.Hours < 0 || tc.Hours > 23:
		return errors.Validationf("hours must be 0-23, got %d", tc.Hours)
	case tc.Minutes < 0 || tc.Minutes > 59:
		return errors.Validationf("minutes must be 0-59, got %d", tc.Minutes)
	case tc.Seconds < 0 || tc.Seconds > 59:
		return errors.Validationf("seconds must be 0-59, got %d", tc.Seconds)
	case tc.Frames < 0 || tc.Frames >= rate.Nominal():
		return errors.Validationf("frames must be 0-%d at %s fps, got %d", rate.Nominal()-1, rate, tc.Frames)
	}

	if drop && tc.isDropped(rate) {
		return errors.Validationf("frame %s does not exist in drop-frame timecode", tc.Format(true))
	}
	return nil
}

func (tc Timecode) isDropped(rate FrameRate) bool {
	return tc.Seconds == 0 && tc.Minutes%10 != 0 && tc.Frames < rate.DropCount()
}

// Next returns the timecode one frame later. Overflow cascades through
// seconds, minutes and hours; hours wrap from 23 to 0. In drop-frame mode the
// first DropCount frame numbers of every minute not divisible by ten are
// skipped.
func (tc Timecode) Next(rate FrameRate, drop bool) Timecode {
	tc.Frames++
	if tc.Frames >= rate.Nominal() {
		tc.Frames = 0
		tc.Seconds++
		if tc.Seconds >= 60 {
			tc.Seconds = 0
			tc.Minutes++
			if tc.Minutes >= 60 {
				tc.Minutes = 0
				tc.Hours = (tc.Hours + 1) % 24
			}
		}
	}

	if drop && rate.SupportsDropFrame() && tc.isDropped(rate) {
		tc.Frames = rate.DropCount()
	}
	return tc
}

func (tc Timecode) String() string {
	return tc.Format(false)
}

// Format renders HH:MM:SS:FF, or HH:MM:SS;FF for drop-frame.
func (tc Timecode) Format(drop bool) string {
	sep := ':'
	if drop {
		sep = ';'
	}
	return fmt.Sprintf("%02d:%02d:%02d%c%02d", tc.Hours, tc.Minutes, tc.Seconds, sep, tc.Frames)
}

// ParseTimecode parses HH:MM:SS:FF. The last separator may also be ';' or
// '.', the usual drop-frame spellings. Ranges are checked by Validate.
func ParseTimecode(s string) (Timecode, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ':' || r == ';' || r == '.'
	})
	if len(fields) != 4 {
		return Timecode{}, errors.NewParseError(fmt.Sprintf("timecode %q must be HH:MM:SS:FF", s))
	}

	var parts [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Timecode{}, errors.NewParseError(fmt.Sprintf("timecode %q has a non-numeric field %q", s, f))
		}
		parts[i] = n
	}
	return Timecode{Hours: parts[0], Minutes: parts[1], Seconds: parts[2], Frames: parts[3]}, nil
}

// FromTime snapshots a wall-clock time as a timecode. Frames are the
// sub-second fraction scaled by the nominal rate. A snapshot that lands on a
// skipped drop-frame number is moved to the first valid frame of that second.
func FromTime(t time.Time, rate FrameRate, drop bool) Timecode {
	tc := Timecode{
		Hours:   t.Hour(),
		Minutes: t.Minute(),
		Seconds: t.Second(),
		Frames:  int(int64(t.Nanosecond()) * int64(rate.Nominal()) / int64(time.Second)),
	}
	if drop && rate.SupportsDropFrame() && tc.isDropped(rate) {
		tc.Frames = rate.DropCount()
	}
	return tc
}
