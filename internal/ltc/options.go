package ltc

import (
	"fmt"

	"github.com/zsiec/ltcgen/internal/errors"
)

const (
	DefaultSampleRate = 48000
	DefaultAmplitude  = 1.0

	MinSampleRate = 8000
	MaxSampleRate = 384000
)

// Options is the generator context: everything that stays fixed across a
// generation run.
type Options struct {
	Rate       FrameRate
	SampleRate int
	DropFrame  bool
	ColorFrame bool
	Amplitude  float64
	UserBits   UserBits

	// Workers > 1 modulates frames concurrently. Output is identical.
	Workers int
}

// DefaultOptions returns 30 fps non-drop at 48 kHz, full scale.
func DefaultOptions() Options {
	return Options{
		Rate:       Rate30,
		SampleRate: DefaultSampleRate,
		Amplitude:  DefaultAmplitude,
	}
}

// Validate rejects any option a frame could not be built or rendered with.
func (o Options) Validate() error {
	if !o.Rate.Valid() {
		return errors.Validationf("unsupported frame rate %d", int(o.Rate))
	}
	if o.DropFrame && !o.Rate.SupportsDropFrame() {
		return errors.NewConfigError(fmt.Sprintf("drop-frame is not defined for %s fps", o.Rate))
	}
	if o.SampleRate < MinSampleRate || o.SampleRate > MaxSampleRate {
		return errors.Validationf("sample rate must be %d-%d Hz, got %d", MinSampleRate, MaxSampleRate, o.SampleRate)
	}
	r := o.Rate.Rational()
	if int64(o.SampleRate)*r.Den < halfCells*r.Num {
		return errors.Validationf("sample rate %d Hz is too low for %s fps biphase", o.SampleRate, o.Rate)
	}
	if o.Amplitude <= 0 || o.Amplitude > 1 {
		return errors.Validationf("amplitude must be in (0, 1], got %g", o.Amplitude)
	}
	if o.Workers < 0 {
		return errors.Validationf("workers cannot be negative, got %d", o.Workers)
	}
	if o.UserBits.BinaryGroups()&BGF2 != 0 && layoutFor(o.Rate).bgf2 < 0 {
		return errors.NewConfigError(fmt.Sprintf("binary group flag 2 cannot be carried at %s fps", o.Rate))
	}
	return nil
}

func (o Options) frameOptions() FrameOptions {
	return FrameOptions{
		Rate:       o.Rate,
		DropFrame:  o.DropFrame,
		ColorFrame: o.ColorFrame,
		UserBits:   o.UserBits,
	}
}

func (o Options) modulator() Modulator {
	return Modulator{Amplitude: float32(o.Amplitude)}
}

// frameStart is the first sample of frame n: floor(n * sampleRate / fps)
// with the exact rational rate, so frame lengths never drift.
func (o Options) frameStart(n int64) int64 {
	r := o.Rate.Rational()
	return n * int64(o.SampleRate) * r.Den / r.Num
}

// framesFor is the number of frames needed to cover total samples.
func (o Options) framesFor(total int64) int64 {
	r := o.Rate.Rational()
	den := int64(o.SampleRate) * r.Den
	return (total*r.Num + den - 1) / den
}

// SamplesPerFrame is the real, possibly fractional, frame length.
func (o Options) SamplesPerFrame() float64 {
	return float64(o.SampleRate) / o.Rate.Float64()
}
