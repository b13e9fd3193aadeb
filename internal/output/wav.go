// Package output writes rendered LTC waveforms as PCM WAV.
package output

import (
	"bytes"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/ltc"
)

const (
	// ContentType is served for rendered WAV bodies.
	ContentType = "audio/wav"

	wavFormatPCM = 1
	headerBytes  = 44
)

// ValidBitDepth reports whether depth is a supported integer PCM depth.
func ValidBitDepth(depth int) bool {
	return depth == 16 || depth == 24
}

// Encode writes wf to w as mono integer PCM at the given bit depth.
func Encode(w io.WriteSeeker, wf *ltc.Waveform, bitDepth int) error {
	if wf == nil {
		return errors.NewValidationError("waveform is required")
	}
	if !ValidBitDepth(bitDepth) {
		return errors.Validationf("unsupported bit depth %d, want 16 or 24", bitDepth)
	}

	enc := wav.NewEncoder(w, wf.SampleRate, bitDepth, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Data:           Quantize(wf.Samples, bitDepth),
		Format:         &audio.Format{SampleRate: wf.SampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return errors.WrapInternalError(err, "failed to write PCM data")
	}
	if err := enc.Close(); err != nil {
		return errors.WrapInternalError(err, "failed to finalize WAV header")
	}
	return nil
}

// EncodeBytes renders wf into a complete WAV file in memory.
func EncodeBytes(wf *ltc.Waveform, bitDepth int) ([]byte, error) {
	size := headerBytes
	if wf != nil {
		size += len(wf.Samples) * bitDepth / 8
	}
	buf := NewBuffer(size)
	if err := Encode(buf, wf, bitDepth); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes wf to path, replacing any existing file.
func WriteFile(path string, wf *ltc.Waveform, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapInternalError(err, "failed to create output file")
	}
	if err := Encode(f, wf, bitDepth); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return errors.WrapInternalError(err, "failed to close output file")
	}
	return nil
}

// Quantize converts normalized float samples to signed integers at bitDepth,
// clamping to the representable range.
func Quantize(samples []float32, bitDepth int) []int {
	peak := float64(int(1)<<(bitDepth-1) - 1)
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * peak)
		if v > peak {
			v = peak
		} else if v < -peak-1 {
			v = -peak - 1
		}
		out[i] = int(v)
	}
	return out
}

// PCM is a decoded WAV file.
type PCM struct {
	SampleRate int
	BitDepth   int
	Channels   int
	Samples    []float32
}

// Decode reads a PCM WAV file back into normalized float samples.
func Decode(r io.ReadSeeker) (*PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.NewParseError("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.WrapParseError(err, "failed to read PCM data")
	}

	depth := int(dec.BitDepth)
	peak := float32(int(1)<<(depth-1) - 1)
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / peak
	}
	return &PCM{
		SampleRate: int(dec.SampleRate),
		BitDepth:   depth,
		Channels:   int(dec.NumChans),
		Samples:    samples,
	}, nil
}

// DecodeBytes is Decode over an in-memory file.
func DecodeBytes(data []byte) (*PCM, error) {
	return Decode(bytes.NewReader(data))
}
