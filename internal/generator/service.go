// Package generator holds the long-lived LTC generator shared by the HTTP API,
// the RTP sender and the CLI.
package generator

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/ltcgen/internal/cache"
	"github.com/zsiec/ltcgen/internal/config"
	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/logger"
	"github.com/zsiec/ltcgen/internal/ltc"
	"github.com/zsiec/ltcgen/internal/metrics"
	"github.com/zsiec/ltcgen/internal/output"
)

// MaxFrames caps a single frames request.
const MaxFrames = 10000

// RenderRequest describes one render. Zero fields fall back to the service
// configuration; UserBits replaces the shared user bits for this render only.
type RenderRequest struct {
	FPS         string             `json:"fps,omitempty"`
	SampleRate  int                `json:"sample_rate,omitempty"`
	DropFrame   *bool              `json:"drop_frame,omitempty"`
	ColorFrame  *bool              `json:"color_frame,omitempty"`
	Amplitude   float64            `json:"amplitude,omitempty"`
	BitDepth    int                `json:"bit_depth,omitempty"`
	Start       string             `json:"start,omitempty"`
	CurrentTime bool               `json:"current_time,omitempty"`
	Duration    float64            `json:"duration"`
	UserBits    *ltc.UserBitsInput `json:"user_bits,omitempty"`
}

// FramesRequest asks for Count assembled frames without rendering audio.
type FramesRequest struct {
	FPS         string             `json:"fps,omitempty"`
	DropFrame   *bool              `json:"drop_frame,omitempty"`
	ColorFrame  *bool              `json:"color_frame,omitempty"`
	Start       string             `json:"start,omitempty"`
	CurrentTime bool               `json:"current_time,omitempty"`
	Count       int                `json:"count"`
	UserBits    *ltc.UserBitsInput `json:"user_bits,omitempty"`
}

// RenderInfo describes a rendered file.
type RenderInfo struct {
	FPS        string  `json:"fps"`
	DropFrame  bool    `json:"drop_frame"`
	SampleRate int     `json:"sample_rate"`
	BitDepth   int     `json:"bit_depth"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Frames     int     `json:"frames"`
	Samples    int     `json:"samples"`
	Duration   float64 `json:"duration"`
}

// Render is an encoded WAV file plus its description.
type Render struct {
	Data   []byte
	Info   RenderInfo
	Cached bool
}

// FrameView is the JSON form of an assembled frame.
type FrameView struct {
	Timecode   string   `json:"timecode"`
	Bits       string   `json:"bits"`
	Hex        string   `json:"hex"`
	DropFrame  bool     `json:"drop_frame"`
	ColorFrame bool     `json:"color_frame"`
	UserBits   [8]uint8 `json:"user_bits"`
}

// UserBitsView is the JSON form of the current user bits.
type UserBitsView struct {
	Mode         string            `json:"mode"`
	Groups       [4]uint8          `json:"groups"`
	Nibbles      [8]uint8          `json:"nibbles"`
	BinaryGroups uint8             `json:"binary_groups"`
	Flags        [8]bool           `json:"binary_group_flags"`
	Field1       *uint8            `json:"field1,omitempty"`
	Input        ltc.UserBitsInput `json:"input"`
}

// Service wraps one ltc.Generator. Renders read its options under a read
// lock; user-bits updates take the write lock.
type Service struct {
	mu  sync.RWMutex
	gen *ltc.Generator

	bitDepth     int
	maxDuration  time.Duration
	defaultStart string

	cache  cache.Cache
	logger logger.Logger
	now    func() time.Time
}

// OptionsFromConfig builds generator options from the generator and
// user_bits sections.
func OptionsFromConfig(cfg *config.Config) (ltc.Options, error) {
	rate, err := ltc.ParseFrameRate(cfg.Generator.FPS)
	if err != nil {
		return ltc.Options{}, err
	}
	in, err := cfg.UserBits.Input()
	if err != nil {
		return ltc.Options{}, err
	}
	ub, err := ltc.NewUserBits(in)
	if err != nil {
		return ltc.Options{}, err
	}

	opts := ltc.Options{
		Rate:       rate,
		SampleRate: cfg.Generator.SampleRate,
		DropFrame:  cfg.Generator.DropFrame,
		ColorFrame: cfg.Generator.ColorFrame,
		Amplitude:  cfg.Generator.Amplitude,
		UserBits:   ub,
		Workers:    cfg.Generator.Workers,
	}
	return opts, opts.Validate()
}

// New builds the service. c may be nil to disable caching.
func New(cfg *config.Config, c cache.Cache, log logger.Logger) (*Service, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := ltc.NewGenerator(opts)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNullLogger()
	}

	return &Service{
		gen:          gen,
		bitDepth:     cfg.Generator.BitDepth,
		maxDuration:  cfg.Generator.MaxDuration,
		defaultStart: cfg.Timecode.Start,
		cache:        c,
		logger:       log.WithField("component", "generator"),
		now:          time.Now,
	}, nil
}

// Options returns a copy of the shared generator options.
func (s *Service) Options() ltc.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen.Options()
}

// Waveform renders req without encoding it.
func (s *Service) Waveform(req RenderRequest) (*ltc.Waveform, error) {
	if err := s.checkDuration(req.Duration); err != nil {
		return nil, s.fail(err)
	}
	gen, start, err := s.resolve(req.FPS, req.SampleRate, req.DropFrame, req.ColorFrame, req.Amplitude, req.UserBits, req.Start, req.CurrentTime)
	if err != nil {
		return nil, s.fail(err)
	}

	began := time.Now()
	wf, err := gen.Generate(start, req.Duration)
	if err != nil {
		return nil, s.fail(err)
	}
	metrics.RecordRender(wf.Rate.String(), wf.Frames, len(wf.Samples), time.Since(began))
	return wf, nil
}

// Render renders req to a WAV file, serving it from the cache when an
// identical render is stored there.
func (s *Service) Render(ctx context.Context, req RenderRequest) (*Render, error) {
	bitDepth := req.BitDepth
	if bitDepth == 0 {
		bitDepth = s.bitDepth
	}
	if !output.ValidBitDepth(bitDepth) {
		return nil, s.fail(errors.Validationf("unsupported bit depth %d, want 16 or 24", bitDepth))
	}
	if err := s.checkDuration(req.Duration); err != nil {
		return nil, s.fail(err)
	}

	gen, start, err := s.resolve(req.FPS, req.SampleRate, req.DropFrame, req.ColorFrame, req.Amplitude, req.UserBits, req.Start, req.CurrentTime)
	if err != nil {
		return nil, s.fail(err)
	}
	opts := gen.Options()

	log := s.logger.WithFields(map[string]interface{}{
		"fps":         opts.Rate.String(),
		"drop_frame":  opts.DropFrame,
		"sample_rate": opts.SampleRate,
		"start":       start.Format(opts.DropFrame),
		"duration":    req.Duration,
		"frame_len":   opts.SamplesPerFrame(),
	})

	key := ""
	if s.cache != nil {
		key, err = cache.Key(cacheKey{
			Rate:       opts.Rate.String(),
			SampleRate: opts.SampleRate,
			DropFrame:  opts.DropFrame,
			ColorFrame: opts.ColorFrame,
			Amplitude:  opts.Amplitude,
			Nibbles:    opts.UserBits.Nibbles(),
			BGF:        opts.UserBits.BinaryGroups(),
			Start:      start,
			Duration:   req.Duration,
			BitDepth:   bitDepth,
		})
		if err != nil {
			return nil, s.fail(errors.WrapInternalError(err, "failed to derive cache key"))
		}
		if r := s.fromCache(ctx, key, log); r != nil {
			return r, nil
		}
	}

	began := time.Now()
	wf, err := gen.Generate(start, req.Duration)
	if err != nil {
		return nil, s.fail(err)
	}
	elapsed := time.Since(began)
	metrics.RecordRender(opts.Rate.String(), wf.Frames, len(wf.Samples), elapsed)

	data, err := output.EncodeBytes(wf, bitDepth)
	if err != nil {
		return nil, s.fail(err)
	}

	r := &Render{Data: data, Info: infoFor(wf, bitDepth)}
	log.WithFields(map[string]interface{}{
		"frames":      wf.Frames,
		"end":         r.Info.End,
		"bytes":       len(data),
		"duration_ms": elapsed.Milliseconds(),
	}).Info("LTC rendered")

	if key != "" {
		s.toCache(ctx, key, r, log)
	}
	return r, nil
}

type cacheKey struct {
	Rate       string       `json:"rate"`
	SampleRate int          `json:"sample_rate"`
	DropFrame  bool         `json:"drop_frame"`
	ColorFrame bool         `json:"color_frame"`
	Amplitude  float64      `json:"amplitude"`
	Nibbles    [8]uint8     `json:"nibbles"`
	BGF        uint8        `json:"bgf"`
	Start      ltc.Timecode `json:"start"`
	Duration   float64      `json:"duration"`
	BitDepth   int          `json:"bit_depth"`
}

// fromCache treats cache failures as misses.
func (s *Service) fromCache(ctx context.Context, key string, log logger.Logger) *Render {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Render cache unavailable")
		return nil
	}
	if !ok {
		return nil
	}
	var info RenderInfo
	if err := json.Unmarshal(entry.Meta, &info); err != nil {
		log.WithError(err).Warn("Discarding unreadable cache entry")
		return nil
	}
	return &Render{Data: entry.Data, Info: info, Cached: true}
}

func (s *Service) toCache(ctx context.Context, key string, r *Render, log logger.Logger) {
	meta, err := json.Marshal(r.Info)
	if err != nil {
		log.WithError(err).Warn("Failed to encode cache metadata")
		return
	}
	if err := s.cache.Set(ctx, key, &cache.Entry{Data: r.Data, Meta: meta}); err != nil {
		log.WithError(err).Warn("Failed to store render in cache")
	}
}

// Frames assembles req.Count frames.
func (s *Service) Frames(req FramesRequest) ([]FrameView, error) {
	if req.Count < 1 || req.Count > MaxFrames {
		return nil, s.fail(errors.Validationf("count must be 1-%d, got %d", MaxFrames, req.Count))
	}
	gen, start, err := s.resolve(req.FPS, 0, req.DropFrame, req.ColorFrame, 0, req.UserBits, req.Start, req.CurrentTime)
	if err != nil {
		return nil, s.fail(err)
	}

	records, err := gen.Frames(start, req.Count)
	if err != nil {
		return nil, s.fail(err)
	}
	metrics.RecordFrames(gen.Options().Rate.String(), len(records))

	drop := gen.Options().DropFrame
	views := make([]FrameView, len(records))
	for i, rec := range records {
		views[i] = viewFrame(rec, drop)
	}
	return views, nil
}

// UserBits returns the shared user bits.
func (s *Service) UserBits() UserBitsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return viewUserBits(s.gen.UserBits())
}

// UpdateUserBits merges patch into the shared user bits.
func (s *Service) UpdateUserBits(patch ltc.UserBitsInput) (UserBitsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gen.UpdateUserBits(patch); err != nil {
		return UserBitsView{}, s.fail(err)
	}
	metrics.IncrementUserBitsUpdate("patch")

	view := viewUserBits(s.gen.UserBits())
	s.logger.WithFields(map[string]interface{}{
		"mode":   view.Mode,
		"groups": view.Groups,
	}).Info("User bits updated")
	return view, nil
}

// SetField1 replaces the first user-bits nibble.
func (s *Service) SetField1(v int) (UserBitsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gen.SetField1(v); err != nil {
		return UserBitsView{}, s.fail(err)
	}
	metrics.IncrementUserBitsUpdate("field1")
	s.logger.WithField("field1", v).Info("User bits field1 set")
	return viewUserBits(s.gen.UserBits()), nil
}

// Stream starts an endless sample stream with the shared options.
func (s *Service) Stream(start string, currentTime bool) (*ltc.Stream, error) {
	gen, tc, err := s.resolve("", 0, nil, nil, 0, nil, start, currentTime)
	if err != nil {
		return nil, s.fail(err)
	}
	return gen.Stream(tc)
}

// resolve applies per-request overrides to a snapshot of the shared options
// and works out the start timecode.
func (s *Service) resolve(fps string, sampleRate int, drop, color *bool, amplitude float64,
	ub *ltc.UserBitsInput, start string, currentTime bool) (*ltc.Generator, ltc.Timecode, error) {

	opts := s.Options()

	if fps != "" {
		rate, err := ltc.ParseFrameRate(fps)
		if err != nil {
			return nil, ltc.Timecode{}, err
		}
		if rate != opts.Rate && drop == nil {
			opts.DropFrame = false
		}
		opts.Rate = rate
	}
	if sampleRate != 0 {
		opts.SampleRate = sampleRate
	}
	if drop != nil {
		opts.DropFrame = *drop
	}
	if color != nil {
		opts.ColorFrame = *color
	}
	if amplitude != 0 {
		opts.Amplitude = amplitude
	}
	if ub != nil {
		bits, err := ltc.NewUserBits(*ub)
		if err != nil {
			return nil, ltc.Timecode{}, err
		}
		opts.UserBits = bits
	}

	gen, err := ltc.NewGenerator(opts)
	if err != nil {
		return nil, ltc.Timecode{}, err
	}

	var tc ltc.Timecode
	if currentTime {
		tc = ltc.FromTime(s.now(), opts.Rate, opts.DropFrame)
	} else {
		if strings.TrimSpace(start) == "" {
			start = s.defaultStart
		}
		tc, err = ltc.ParseTimecode(start)
		if err != nil {
			return nil, ltc.Timecode{}, err
		}
	}
	if err := tc.Validate(opts.Rate, opts.DropFrame); err != nil {
		return nil, ltc.Timecode{}, err
	}
	return gen, tc, nil
}

func (s *Service) checkDuration(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return errors.Validationf("duration must be a positive number of seconds, got %g", seconds)
	}
	if s.maxDuration > 0 && seconds > s.maxDuration.Seconds() {
		return errors.Validationf("duration %gs exceeds the %s limit", seconds, s.maxDuration)
	}
	return nil
}

func (s *Service) fail(err error) error {
	metrics.IncrementGenerationError(string(errors.TypeOf(err)))
	return err
}

func infoFor(wf *ltc.Waveform, bitDepth int) RenderInfo {
	return RenderInfo{
		FPS:        wf.Rate.String(),
		DropFrame:  wf.DropFrame,
		SampleRate: wf.SampleRate,
		BitDepth:   bitDepth,
		Start:      wf.Start.Format(wf.DropFrame),
		End:        wf.End.Format(wf.DropFrame),
		Frames:     wf.Frames,
		Samples:    len(wf.Samples),
		Duration:   wf.Duration().Seconds(),
	}
}

func viewFrame(rec ltc.FrameRecord, drop bool) FrameView {
	bits := rec.Frame.Bits()
	var sb strings.Builder
	sb.Grow(len(bits))
	for _, b := range bits {
		sb.WriteByte('0' + b)
	}
	return FrameView{
		Timecode:   rec.Timecode.Format(drop),
		Bits:       sb.String(),
		Hex:        rec.Frame.Hex(),
		DropFrame:  rec.Frame.DropFrame(),
		ColorFrame: rec.Frame.ColorFrame(),
		UserBits:   ltc.DecodeUserBits(rec.Frame),
	}
}

func viewUserBits(u ltc.UserBits) UserBitsView {
	v := UserBitsView{
		Mode:         u.Mode().String(),
		Groups:       u.Groups(),
		Nibbles:      u.Nibbles(),
		BinaryGroups: u.BinaryGroups(),
		Input:        u.Input(),
	}
	for i := range v.Flags {
		v.Flags[i] = u.BinaryGroups()&(1<<i) != 0
	}
	if f, ok := u.Field1(); ok {
		v.Field1 = &f
	}
	return v
}
