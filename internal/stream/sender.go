// Package stream sends live LTC as RTP L16 audio with RTCP sender reports.
package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/zsiec/ltcgen/internal/config"
	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/logger"
	"github.com/zsiec/ltcgen/internal/ltc"
	"github.com/zsiec/ltcgen/internal/metrics"
	"github.com/zsiec/ltcgen/internal/output"
	"github.com/zsiec/ltcgen/pkg/version"
)

const (
	// ntpEpochOffset is the number of seconds from 1900 to 1970.
	ntpEpochOffset = 2208988800

	// Payloads above this will be IP-fragmented on a 1500 byte MTU.
	maxUnfragmentedPayload = 1500 - 20 - 8 - 12
)

// Source supplies mono samples. *ltc.Stream implements it.
type Source interface {
	Read(dst []float32) (int, error)
	SampleRate() int
}

// framedSource is a Source that assembles LTC frames. Senders count its
// frames and samples under its rate.
type framedSource interface {
	Source
	Frames() int64
	Rate() ltc.FrameRate
}

// Stats are the sender counters reported in RTCP.
type Stats struct {
	PacketsSent uint32
	OctetsSent  uint32
	Reports     uint32
	WriteErrors uint64
}

// Sender paces a Source onto the network as RTP packets of PacketTime each.
type Sender struct {
	cfg       config.RTPConfig
	src       Source
	sessionID string
	ssrc      uint32

	rtpConn  net.Conn
	rtcpConn net.Conn

	limiter          *rate.Limiter
	sequencer        rtp.Sequencer
	samplesPerPacket int
	timestamp        uint32

	// RTP time of the last packet and when it left, for sender reports.
	lastTimestamp uint32
	lastSent      time.Time

	packets     atomic.Uint32
	octets      atomic.Uint32
	reports     atomic.Uint32
	writeErrors atomic.Uint64

	logger  logger.Logger
	sampled *logger.SampledLogger
}

// NewSender dials the RTP destination and the RTCP port above it.
func NewSender(cfg config.RTPConfig, src Source, log logger.Logger) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigError(err.Error())
	}
	if log == nil {
		log = logger.NewNullLogger()
	}

	spp := int(int64(src.SampleRate()) * int64(cfg.PacketTime) / int64(time.Second))
	if spp < 1 {
		return nil, errors.Validationf("packet time %s holds no samples at %d Hz", cfg.PacketTime, src.SampleRate())
	}

	host, portStr, _ := net.SplitHostPort(cfg.Destination)
	port, _ := strconv.Atoi(portStr)

	rtpConn, err := net.Dial("udp", cfg.Destination)
	if err != nil {
		return nil, errors.WrapInternalError(err, "failed to dial RTP destination")
	}
	rtcpConn, err := net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port+1)))
	if err != nil {
		rtpConn.Close()
		return nil, errors.WrapInternalError(err, "failed to dial RTCP destination")
	}

	id := uuid.New()
	ssrc := cfg.SSRC
	if ssrc == 0 {
		ssrc = id.ID()
	}

	s := &Sender{
		cfg:              cfg,
		src:              src,
		sessionID:        id.String(),
		ssrc:             ssrc,
		rtpConn:          rtpConn,
		rtcpConn:         rtcpConn,
		limiter:          rate.NewLimiter(rate.Limit(float64(src.SampleRate())/float64(spp)), 1),
		sequencer:        rtp.NewRandomSequencer(),
		samplesPerPacket: spp,
		timestamp:        uuid.New().ID(),
	}
	s.logger = log.WithFields(map[string]interface{}{
		"component":  "rtp_sender",
		"session_id": s.sessionID,
		"ssrc":       ssrc,
	})
	s.sampled = logger.NewPacketLogger(s.logger)

	if payload := 2 * spp; payload > maxUnfragmentedPayload {
		s.logger.WithField("payload_bytes", payload).Warn("RTP payload exceeds a 1500 byte MTU and will be fragmented")
	}
	return s, nil
}

func (s *Sender) SessionID() string { return s.sessionID }

func (s *Sender) SSRC() uint32 { return s.ssrc }

func (s *Sender) Stats() Stats {
	return Stats{
		PacketsSent: s.packets.Load(),
		OctetsSent:  s.octets.Load(),
		Reports:     s.reports.Load(),
		WriteErrors: s.writeErrors.Load(),
	}
}

// Run sends until ctx is cancelled, then sends an RTCP BYE and closes the
// sockets. It returns nil on cancellation.
func (s *Sender) Run(ctx context.Context) error {
	metrics.IncrementActiveRTPSessions()
	defer metrics.DecrementActiveRTPSessions()
	defer s.close()

	s.logger.WithFields(map[string]interface{}{
		"destination":  s.cfg.Destination,
		"payload_type": s.cfg.PayloadType,
		"packet_time":  s.cfg.PacketTime.String(),
		"sample_rate":  s.src.SampleRate(),
	}).Info("RTP session started")

	samples := make([]float32, s.samplesPerPacket)
	payload := make([]byte, 2*s.samplesPerPacket)
	lastReport := time.Now()

	framed, _ := s.src.(framedSource)
	label := "unknown"
	var frames int64
	if framed != nil {
		label = framed.Rate().String()
		frames = framed.Frames()
	}

	for {
		// Wait fails only once ctx is done or its deadline falls before the
		// next packet slot.
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"packets": s.packets.Load(),
				"octets":  s.octets.Load(),
			}).Info("RTP session stopped")
			return nil
		}

		n, err := s.src.Read(samples)
		if err != nil {
			return errors.WrapInternalError(err, "failed to read samples")
		}
		metrics.RecordSamples(label, n)
		if framed != nil {
			f := framed.Frames()
			metrics.RecordFrames(label, int(f-frames))
			frames = f
		}
		EncodeL16(payload, samples)

		if err := s.sendPacket(payload); err != nil {
			s.writeErrors.Add(1)
			s.sampled.Warn(logger.CategoryWriteError, "RTP write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}

		if time.Since(lastReport) >= s.cfg.RTCPInterval {
			lastReport = time.Now()
			if err := s.sendReport(lastReport); err != nil {
				s.writeErrors.Add(1)
				s.sampled.Warn(logger.CategoryWriteError, "RTCP write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

func (s *Sender) sendPacket(payload []byte) error {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         s.packets.Load() == 0,
			PayloadType:    s.cfg.PayloadType,
			SequenceNumber: s.sequencer.NextSequenceNumber(),
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.timestamp += uint32(s.samplesPerPacket)

	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	if _, err := s.rtpConn.Write(data); err != nil {
		return err
	}

	s.lastTimestamp = pkt.Timestamp
	s.lastSent = time.Now()
	s.packets.Add(1)
	s.octets.Add(uint32(len(payload)))
	metrics.RecordRTPPacket(len(payload))

	s.sampled.Debug(logger.CategoryPacket, "RTP packet sent", map[string]interface{}{
		"seq":       pkt.SequenceNumber,
		"timestamp": pkt.Timestamp,
		"bytes":     len(data),
	})
	return nil
}

func (s *Sender) sendReport(now time.Time) error {
	rtpTime := s.lastTimestamp
	if !s.lastSent.IsZero() {
		rtpTime += uint32(now.Sub(s.lastSent).Seconds() * float64(s.src.SampleRate()))
	}

	packets := []rtcp.Packet{
		&rtcp.SenderReport{
			SSRC:        s.ssrc,
			NTPTime:     NTPTime(now),
			RTPTime:     rtpTime,
			PacketCount: s.packets.Load(),
			OctetCount:  s.octets.Load(),
		},
		s.sourceDescription(),
	}
	if err := s.writeRTCP(packets); err != nil {
		return err
	}

	s.reports.Add(1)
	metrics.IncrementRTCPReports()
	s.sampled.Debug(logger.CategoryReport, "RTCP sender report sent", map[string]interface{}{
		"packets": s.packets.Load(),
		"octets":  s.octets.Load(),
	})
	return nil
}

func (s *Sender) sourceDescription() *rtcp.SourceDescription {
	return &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{
			Source: s.ssrc,
			Items: []rtcp.SourceDescriptionItem{{
				Type: rtcp.SDESCNAME,
				Text: version.GetInfo().Software(),
			}},
		}},
	}
}

func (s *Sender) writeRTCP(packets []rtcp.Packet) error {
	data, err := rtcp.Marshal(packets)
	if err != nil {
		return fmt.Errorf("failed to marshal RTCP: %w", err)
	}
	_, err = s.rtcpConn.Write(data)
	return err
}

func (s *Sender) close() {
	bye := &rtcp.Goodbye{Sources: []uint32{s.ssrc}, Reason: "shutdown"}
	if err := s.writeRTCP([]rtcp.Packet{s.sourceDescription(), bye}); err != nil {
		s.logger.WithError(err).Debug("Failed to send RTCP BYE")
	}
	s.rtpConn.Close()
	s.rtcpConn.Close()
}

// EncodeL16 writes samples into dst as big-endian signed 16-bit PCM.
// dst must hold 2*len(samples) bytes.
func EncodeL16(dst []byte, samples []float32) {
	for i, v := range output.Quantize(samples, 16) {
		binary.BigEndian.PutUint16(dst[2*i:], uint16(int16(v)))
	}
}

// NTPTime converts t to the 64-bit NTP timestamp format.
func NTPTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}
