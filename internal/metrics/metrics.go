package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation metrics
	framesAssembledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ltc_frames_assembled_total",
		Help: "Total LTC frames assembled",
	}, []string{"rate"})

	samplesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ltc_samples_generated_total",
		Help: "Total audio samples generated",
	}, []string{"rate"})

	generationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ltc_generation_errors_total",
		Help: "Total rejected generation requests by error type",
	}, []string{"error_type"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ltc_generation_duration_seconds",
		Help:    "Time spent rendering a waveform",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
	}, []string{"rate"})

	userBitsUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ltc_user_bits_updates_total",
		Help: "Total user bits changes applied to the shared generator",
	}, []string{"kind"})

	// Render cache metrics
	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ltc_cache_requests_total",
		Help: "Render cache lookups by result",
	}, []string{"result"})

	// RTP metrics
	rtpPacketsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ltc_rtp_packets_sent_total",
		Help: "Total RTP packets sent",
	})

	rtpBytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ltc_rtp_bytes_sent_total",
		Help: "Total RTP payload bytes sent",
	})

	rtcpReportsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ltc_rtcp_reports_sent_total",
		Help: "Total RTCP sender reports sent",
	})

	rtpSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ltc_rtp_sessions_active",
		Help: "Number of RTP sessions currently streaming",
	})
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordRender records one finished waveform.
func RecordRender(rate string, frames, samples int, duration time.Duration) {
	framesAssembledTotal.WithLabelValues(rate).Add(float64(frames))
	samplesGeneratedTotal.WithLabelValues(rate).Add(float64(samples))
	generationDuration.WithLabelValues(rate).Observe(duration.Seconds())
}

// RecordFrames counts frames assembled outside a render, e.g. frame listings
// and the RTP stream.
func RecordFrames(rate string, frames int) {
	framesAssembledTotal.WithLabelValues(rate).Add(float64(frames))
}

// RecordSamples counts streamed samples.
func RecordSamples(rate string, samples int) {
	samplesGeneratedTotal.WithLabelValues(rate).Add(float64(samples))
}

func IncrementGenerationError(errorType string) {
	generationErrorsTotal.WithLabelValues(errorType).Inc()
}

func IncrementUserBitsUpdate(kind string) {
	userBitsUpdatesTotal.WithLabelValues(kind).Inc()
}

func IncrementCache(result string) {
	cacheRequestsTotal.WithLabelValues(result).Inc()
}

func RecordRTPPacket(payloadBytes int) {
	rtpPacketsSentTotal.Inc()
	rtpBytesSentTotal.Add(float64(payloadBytes))
}

func IncrementRTCPReports() {
	rtcpReportsSentTotal.Inc()
}

func IncrementActiveRTPSessions() {
	rtpSessionsActive.Inc()
}

func DecrementActiveRTPSessions() {
	rtpSessionsActive.Dec()
}
