package ltc

import (
	"fmt"
	"iter"

	"github.com/zsiec/ltcgen/internal/errors"
)

// Clock produces successive timecodes one video frame apart.
type Clock struct {
	start    Timecode
	current  Timecode
	rate     FrameRate
	drop     bool
	position int64
}

// NewClock validates start against rate and drop-frame mode. Requesting
// drop-frame on a rate that does not define it is a ConfigError.
func NewClock(start Timecode, rate FrameRate, drop bool) (*Clock, error) {
	if drop && !rate.SupportsDropFrame() {
		return nil, errors.NewConfigError(fmt.Sprintf("drop-frame is not defined for %s fps", rate))
	}
	if err := start.Validate(rate, drop); err != nil {
		return nil, err
	}
	return &Clock{
		start:   start,
		current: start,
		rate:    rate,
		drop:    drop,
	}, nil
}

// Next returns the current timecode and advances by one frame.
func (c *Clock) Next() Timecode {
	tc := c.current
	c.current = c.current.Next(c.rate, c.drop)
	c.position++
	return tc
}

// Peek returns the timecode Next would return without advancing.
func (c *Clock) Peek() Timecode {
	return c.current
}

// Position is the number of frames emitted since the last reset.
func (c *Clock) Position() int64 {
	return c.position
}

// Reset rewinds the clock to its start.
func (c *Clock) Reset() {
	c.current = c.start
	c.position = 0
}

func (c *Clock) Rate() FrameRate { return c.rate }

func (c *Clock) DropFrame() bool { return c.drop }

// All yields the endless sequence starting at the clock's start. Each range
// over it starts again from the beginning and leaves the clock untouched.
func (c *Clock) All() iter.Seq[Timecode] {
	start, rate, drop := c.start, c.rate, c.drop
	return func(yield func(Timecode) bool) {
		tc := start
		for {
			if !yield(tc) {
				return
			}
			tc = tc.Next(rate, drop)
		}
	}
}
