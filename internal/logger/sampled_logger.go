package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Categories used by the RTP sender, which logs per packet.
const (
	CategoryPacket     = "rtp.packet"
	CategoryWriteError = "rtp.write_error"
	CategoryReport     = "rtp.report"
)

// SampledLogger throttles high-frequency log categories. Each category gets
// a token bucket; messages beyond it are counted and the count is attached
// to the next message that gets through as "suppressed".
type SampledLogger struct {
	base Logger

	mu       sync.RWMutex
	samplers map[string]*sampler
}

type sampler struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
	total      atomic.Int64
	logged     atomic.Int64
}

// SamplerStats reports how many messages a category saw and let through.
type SamplerStats struct {
	Total      int64
	Logged     int64
	Suppressed int64
}

func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		base:     base,
		samplers: make(map[string]*sampler),
	}
}

// WithSampler allows burst messages of category at once and then one per
// interval. Categories without a sampler are never throttled.
func (s *SampledLogger) WithSampler(category string, interval time.Duration, burst int) *SampledLogger {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplers[category] = &sampler{limiter: rate.NewLimiter(rate.Every(interval), burst)}
	return s
}

// allow reports whether a message may be logged and how many were
// suppressed since the last one that was.
func (s *SampledLogger) allow(category string) (bool, int64) {
	s.mu.RLock()
	smp, ok := s.samplers[category]
	s.mu.RUnlock()
	if !ok {
		return true, 0
	}

	smp.total.Add(1)
	if !smp.limiter.Allow() {
		smp.suppressed.Add(1)
		return false, 0
	}
	smp.logged.Add(1)
	return true, smp.suppressed.Swap(0)
}

func (s *SampledLogger) entry(category string, fields map[string]interface{}) (Logger, bool) {
	ok, suppressed := s.allow(category)
	if !ok {
		return nil, false
	}
	l := s.base.WithField("category", category)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	if suppressed > 0 {
		l = l.WithField("suppressed", suppressed)
	}
	return l, true
}

func (s *SampledLogger) Debug(category, msg string, fields map[string]interface{}) {
	if l, ok := s.entry(category, fields); ok {
		l.Debug(msg)
	}
}

func (s *SampledLogger) Info(category, msg string, fields map[string]interface{}) {
	if l, ok := s.entry(category, fields); ok {
		l.Info(msg)
	}
}

func (s *SampledLogger) Warn(category, msg string, fields map[string]interface{}) {
	if l, ok := s.entry(category, fields); ok {
		l.Warn(msg)
	}
}

func (s *SampledLogger) Error(category, msg string, fields map[string]interface{}) {
	if l, ok := s.entry(category, fields); ok {
		l.Error(msg)
	}
}

// Stats returns a snapshot per configured category. Suppressed counts
// messages not yet reported on a logged line.
func (s *SampledLogger) Stats() map[string]SamplerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]SamplerStats, len(s.samplers))
	for name, smp := range s.samplers {
		out[name] = SamplerStats{
			Total:      smp.total.Load(),
			Logged:     smp.logged.Load(),
			Suppressed: smp.suppressed.Load(),
		}
	}
	return out
}

// NewPacketLogger returns the sampler set the RTP sender uses: a few packet
// traces per second, write errors at most once a second, reports unthrottled.
func NewPacketLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		WithSampler(CategoryPacket, 200*time.Millisecond, 5).
		WithSampler(CategoryWriteError, time.Second, 3)
}
