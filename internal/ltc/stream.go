package ltc

// Stream is an endless LTC waveform. It owns the clock, the polarity carried
// from one frame into the next and the exact sample position of every frame
// boundary. The first frame starts at LevelHigh.
type Stream struct {
	opts  Options
	fo    FrameOptions
	mod   Modulator
	clock *Clock

	level   Level
	frames  int64
	last    Timecode
	pending []float32
	buf     []float32
}

// NewStream validates opts and start and positions the stream at start.
func NewStream(opts Options, start Timecode) (*Stream, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	clock, err := NewClock(start, opts.Rate, opts.DropFrame)
	if err != nil {
		return nil, err
	}
	return &Stream{
		opts:  opts,
		fo:    opts.frameOptions(),
		mod:   opts.modulator(),
		clock: clock,
		level: LevelHigh,
	}, nil
}

// Read fills dst completely. The stream never ends; an error is returned only
// if a frame cannot be assembled.
func (s *Stream) Read(dst []float32) (int, error) {
	n := 0
	for n < len(dst) {
		if len(s.pending) == 0 {
			if err := s.nextFrame(); err != nil {
				return n, err
			}
		}
		c := copy(dst[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

func (s *Stream) nextFrame() error {
	tc := s.clock.Next()
	f, err := Assemble(tc, s.fo)
	if err != nil {
		return err
	}

	size := int(s.opts.frameStart(s.frames+1) - s.opts.frameStart(s.frames))
	if cap(s.buf) < size {
		s.buf = make([]float32, size)
	}
	s.buf = s.buf[:size]
	s.level = s.mod.Modulate(s.buf, f, s.level)
	s.pending = s.buf

	s.frames++
	s.last = tc
	return nil
}

// Frames is the number of frames started so far.
func (s *Stream) Frames() int64 { return s.frames }

// Last is the timecode of the most recently started frame.
func (s *Stream) Last() Timecode { return s.last }

// Position is the number of samples handed out so far.
func (s *Stream) Position() int64 {
	return s.opts.frameStart(s.frames) - int64(len(s.pending))
}

func (s *Stream) SampleRate() int { return s.opts.SampleRate }

func (s *Stream) Rate() FrameRate { return s.opts.Rate }

// Reset rewinds to the start timecode and the reference polarity.
func (s *Stream) Reset() {
	s.clock.Reset()
	s.level = LevelHigh
	s.frames = 0
	s.last = Timecode{}
	s.pending = nil
}
