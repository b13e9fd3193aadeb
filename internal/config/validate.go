package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/zsiec/ltcgen/internal/ltc"
)

func (c *Config) Validate() error {
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("generator config: %w", err)
	}

	if err := c.Timecode.Validate(c.Generator.MaxDuration); err != nil {
		return fmt.Errorf("timecode config: %w", err)
	}

	if _, err := c.UserBits.Input(); err != nil {
		return fmt.Errorf("user_bits config: %w", err)
	}

	if c.Output.Path == "" {
		return fmt.Errorf("output config: path cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if c.Cache.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.RTP.Validate(); err != nil {
		return fmt.Errorf("rtp config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

func (g *GeneratorConfig) Validate() error {
	rate, err := ltc.ParseFrameRate(g.FPS)
	if err != nil {
		return err
	}

	// The drop-frame check keeps its ConfigError type through the wrapping.
	opts := ltc.Options{
		Rate:       rate,
		SampleRate: g.SampleRate,
		DropFrame:  g.DropFrame,
		Amplitude:  g.Amplitude,
		Workers:    g.Workers,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	if g.BitDepth != 16 && g.BitDepth != 24 {
		return fmt.Errorf("bit_depth must be 16 or 24, got %d", g.BitDepth)
	}

	if g.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive")
	}

	return nil
}

// Rate returns the parsed frame rate. Call Validate first.
func (g *GeneratorConfig) Rate() ltc.FrameRate {
	rate, _ := ltc.ParseFrameRate(g.FPS)
	return rate
}

func (t *TimecodeConfig) Validate(maxDuration time.Duration) error {
	if t.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g", t.Duration)
	}

	if maxDuration > 0 && t.Duration > maxDuration.Seconds() {
		return fmt.Errorf("duration %gs exceeds max_duration %s", t.Duration, maxDuration)
	}

	if !t.CurrentTime {
		if _, err := ltc.ParseTimecode(t.Start); err != nil {
			return err
		}
	}

	return nil
}

// Input converts the section into the generator's user-bits input and
// validates it.
func (u *UserBitsConfig) Input() (ltc.UserBitsInput, error) {
	in := ltc.UserBitsInput{
		Date:     u.Date,
		Timezone: u.Timezone,
		Reel:     u.Reel,
		Camera:   u.Camera,
		Field1:   u.Field1,
	}

	if len(u.Groups) > 0 {
		if len(u.Groups) != 4 {
			return ltc.UserBitsInput{}, fmt.Errorf("groups must have exactly 4 values, got %d", len(u.Groups))
		}
		var groups [4]int
		copy(groups[:], u.Groups)
		in.Groups = &groups
	}

	if u.BinaryGroups != 0 {
		bg := u.BinaryGroups
		in.BinaryGroups = &bg
	}

	if _, err := ltc.NewUserBits(in); err != nil {
		return ltc.UserBitsInput{}, err
	}
	return in, nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}

	if s.TLSEnabled() {
		if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
			return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
		}

		if s.HTTP3Port == s.HTTPPort {
			return fmt.Errorf("HTTP and HTTP3 ports must be different")
		}

		// Check if certificate files exist
		if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
		}

		if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
		}

		if s.MaxIncomingStreams <= 0 {
			return fmt.Errorf("max_incoming_streams must be positive")
		}

		if s.MaxIncomingUniStreams <= 0 {
			return fmt.Errorf("max_incoming_uni_streams must be positive")
		}
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	if s.RateLimit > 0 && s.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}

	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}

	return nil
}

// TLSEnabled reports whether the HTTP/3 listener should start.
func (s *ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if c.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	if c.MaxEntryBytes <= 0 {
		return fmt.Errorf("max_entry_bytes must be positive")
	}

	return nil
}

func (r *RTPConfig) Validate() error {
	host, port, err := net.SplitHostPort(r.Destination)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", r.Destination, err)
	}

	if host == "" {
		return fmt.Errorf("destination host cannot be empty")
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65534 {
		return fmt.Errorf("invalid destination port: %s", port)
	}

	if r.PayloadType < 96 || r.PayloadType > 127 {
		return fmt.Errorf("payload_type must be dynamic (96-127), got %d", r.PayloadType)
	}

	if r.PacketTime < time.Millisecond || r.PacketTime > 100*time.Millisecond {
		return fmt.Errorf("packet_time must be 1ms-100ms, got %s", r.PacketTime)
	}

	if r.RTCPInterval <= 0 {
		return fmt.Errorf("rtcp_interval must be positive")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}
