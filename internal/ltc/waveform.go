package ltc

import (
	"math"
	"sync"
	"time"

	"github.com/zsiec/ltcgen/internal/errors"
)

// Waveform is a finished mono sample sequence.
type Waveform struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Rate       FrameRate
	DropFrame  bool
	Frames     int      // frames started, the last one possibly truncated
	Start      Timecode // first frame
	End        Timecode // last frame
}

// Duration is the playing time of the samples.
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(len(w.Samples)) * int64(time.Second) / int64(w.SampleRate))
}

// FrameRecord pairs an assembled frame with its timecode.
type FrameRecord struct {
	Timecode Timecode `json:"timecode"`
	Frame    Frame    `json:"-"`
}

// Generator renders LTC for a fixed set of options. It is not safe for
// concurrent use; callers that share one serialise access themselves.
type Generator struct {
	opts Options
}

// NewGenerator validates opts before anything is rendered.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Amplitude == 0 {
		opts.Amplitude = DefaultAmplitude
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Generator{opts: opts}, nil
}

func (g *Generator) Options() Options { return g.opts }

func (g *Generator) UserBits() UserBits { return g.opts.UserBits }

// UpdateUserBits merges patch into the current user bits. On error the
// generator is unchanged.
func (g *Generator) UpdateUserBits(patch UserBitsInput) error {
	ub, err := g.opts.UserBits.Merge(patch)
	if err != nil {
		return err
	}
	return g.setUserBits(ub)
}

// SetField1 replaces only the nibble in frame bits 4-7.
func (g *Generator) SetField1(v int) error {
	ub, err := g.opts.UserBits.WithField1(v)
	if err != nil {
		return err
	}
	return g.setUserBits(ub)
}

func (g *Generator) setUserBits(ub UserBits) error {
	opts := g.opts
	opts.UserBits = ub
	if err := opts.Validate(); err != nil {
		return err
	}
	g.opts = opts
	return nil
}

// Generate renders seconds of LTC starting at start. The result holds exactly
// round(seconds * sampleRate) samples.
func (g *Generator) Generate(start Timecode, seconds float64) (*Waveform, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return nil, errors.Validationf("duration must be a positive number of seconds, got %g", seconds)
	}
	total := int64(math.Round(seconds * float64(g.opts.SampleRate)))
	if total == 0 {
		return nil, errors.Validationf("duration %gs is shorter than one sample", seconds)
	}

	if g.opts.Workers > 1 {
		return g.generateParallel(start, total)
	}

	stream, err := NewStream(g.opts, start)
	if err != nil {
		return nil, err
	}
	samples := make([]float32, total)
	if _, err := stream.Read(samples); err != nil {
		return nil, err
	}
	return g.waveform(samples, start, stream.Last(), int(stream.Frames())), nil
}

// generateParallel assembles every frame and its starting level in order,
// then modulates the frames concurrently into their own sample ranges.
func (g *Generator) generateParallel(start Timecode, total int64) (*Waveform, error) {
	n := g.opts.framesFor(total)
	records, err := g.Frames(start, int(n))
	if err != nil {
		return nil, err
	}

	levels := make([]Level, len(records))
	level := LevelHigh
	for i, rec := range records {
		levels[i] = level
		level = EndLevel(rec.Frame, level)
	}

	samples := make([]float32, g.opts.frameStart(n))
	mod := g.opts.modulator()

	workers := g.opts.Workers
	if workers > len(records) {
		workers = len(records)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(records); i += workers {
				lo, hi := g.opts.frameStart(int64(i)), g.opts.frameStart(int64(i+1))
				mod.Modulate(samples[lo:hi], records[i].Frame, levels[i])
			}
		}(w)
	}
	wg.Wait()

	return g.waveform(samples[:total], start, records[len(records)-1].Timecode, len(records)), nil
}

// Frames assembles n consecutive frames starting at start.
func (g *Generator) Frames(start Timecode, n int) ([]FrameRecord, error) {
	if n < 0 {
		return nil, errors.Validationf("frame count cannot be negative, got %d", n)
	}
	clock, err := NewClock(start, g.opts.Rate, g.opts.DropFrame)
	if err != nil {
		return nil, err
	}

	fo := g.opts.frameOptions()
	records := make([]FrameRecord, 0, n)
	for i := 0; i < n; i++ {
		tc := clock.Next()
		f, err := Assemble(tc, fo)
		if err != nil {
			return nil, err
		}
		records = append(records, FrameRecord{Timecode: tc, Frame: f})
	}
	return records, nil
}

// Stream starts an endless stream at start with the current options.
func (g *Generator) Stream(start Timecode) (*Stream, error) {
	return NewStream(g.opts, start)
}

func (g *Generator) waveform(samples []float32, start, end Timecode, frames int) *Waveform {
	return &Waveform{
		Samples:    samples,
		SampleRate: g.opts.SampleRate,
		Channels:   1,
		Rate:       g.opts.Rate,
		DropFrame:  g.opts.DropFrame,
		Frames:     frames,
		Start:      start,
		End:        end,
	}
}
