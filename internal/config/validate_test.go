package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorConfigValidate(t *testing.T) {
	valid := GeneratorConfig{
		FPS:         "30",
		SampleRate:  48000,
		Amplitude:   1,
		BitDepth:    16,
		MaxDuration: time.Minute,
	}

	tests := []struct {
		name    string
		modify  func(*GeneratorConfig)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", modify: func(*GeneratorConfig) {}},
		{name: "drop frame at 59.94", modify: func(g *GeneratorConfig) { g.FPS = "59.94"; g.DropFrame = true }},
		{name: "unknown fps", modify: func(g *GeneratorConfig) { g.FPS = "48" }, wantErr: true, errMsg: "unsupported frame rate"},
		{name: "drop frame at 30", modify: func(g *GeneratorConfig) { g.DropFrame = true }, wantErr: true, errMsg: "drop-frame is not defined"},
		{name: "sample rate", modify: func(g *GeneratorConfig) { g.SampleRate = 100 }, wantErr: true, errMsg: "sample rate"},
		{name: "amplitude", modify: func(g *GeneratorConfig) { g.Amplitude = 2 }, wantErr: true, errMsg: "amplitude"},
		{name: "bit depth", modify: func(g *GeneratorConfig) { g.BitDepth = 8 }, wantErr: true, errMsg: "bit_depth"},
		{name: "negative workers", modify: func(g *GeneratorConfig) { g.Workers = -2 }, wantErr: true, errMsg: "workers"},
		{name: "max duration", modify: func(g *GeneratorConfig) { g.MaxDuration = 0 }, wantErr: true, errMsg: "max_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimecodeConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  TimecodeConfig
		wantErr bool
	}{
		{"valid", TimecodeConfig{Start: "01:30:45:10", Duration: 1}, false},
		{"current time ignores start", TimecodeConfig{Start: "garbage", CurrentTime: true, Duration: 1}, false},
		{"zero duration", TimecodeConfig{Start: "00:00:00:00"}, true},
		{"negative duration", TimecodeConfig{Start: "00:00:00:00", Duration: -1}, true},
		{"too long", TimecodeConfig{Start: "00:00:00:00", Duration: 61}, true},
		{"bad start", TimecodeConfig{Start: "noon", Duration: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate(time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUserBitsConfigInput(t *testing.T) {
	t.Run("raw groups", func(t *testing.T) {
		cfg := UserBitsConfig{Groups: []int{1, 2, 3, 4}}
		in, err := cfg.Input()
		require.NoError(t, err)
		require.NotNil(t, in.Groups)
		assert.Equal(t, [4]int{1, 2, 3, 4}, *in.Groups)
		assert.Nil(t, in.BinaryGroups)
	})

	t.Run("wrong group count", func(t *testing.T) {
		cfg := UserBitsConfig{Groups: []int{1, 2, 3}}
		_, err := cfg.Input()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly 4")
	})

	t.Run("group out of range", func(t *testing.T) {
		cfg := UserBitsConfig{Groups: []int{1, 2, 3, 300}}
		_, err := cfg.Input()
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		var cfg UserBitsConfig
		in, err := cfg.Input()
		require.NoError(t, err)
		assert.True(t, in.IsZero())
	})
}

func TestServerConfigValidate(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("key"), 0o600))

	base := ServerConfig{
		HTTPPort:              8080,
		HTTP3Port:             8443,
		MaxIncomingStreams:    100,
		MaxIncomingUniStreams: 10,
		RateLimit:             10,
		RateBurst:             20,
		MaxBodyBytes:          1 << 20,
	}

	tests := []struct {
		name    string
		modify  func(*ServerConfig)
		wantErr bool
		errMsg  string
	}{
		{name: "plain HTTP", modify: func(*ServerConfig) {}},
		{name: "with TLS", modify: func(s *ServerConfig) { s.TLSCertFile, s.TLSKeyFile = cert, key }},
		{name: "rate limit disabled", modify: func(s *ServerConfig) { s.RateLimit, s.RateBurst = 0, 0 }},
		{name: "invalid port", modify: func(s *ServerConfig) { s.HTTPPort = 70000 }, wantErr: true, errMsg: "invalid HTTP port"},
		{name: "cert without key", modify: func(s *ServerConfig) { s.TLSCertFile = cert }, wantErr: true, errMsg: "set together"},
		{
			name:    "cert files not found",
			modify:  func(s *ServerConfig) { s.TLSCertFile, s.TLSKeyFile = "/nonexistent/cert.pem", key },
			wantErr: true,
			errMsg:  "TLS certificate file not found",
		},
		{
			name:    "same ports",
			modify:  func(s *ServerConfig) { s.TLSCertFile, s.TLSKeyFile, s.HTTP3Port = cert, key, 8080 },
			wantErr: true,
			errMsg:  "must be different",
		},
		{
			name:    "zero max incoming streams",
			modify:  func(s *ServerConfig) { s.TLSCertFile, s.TLSKeyFile, s.MaxIncomingStreams = cert, key, 0 },
			wantErr: true,
			errMsg:  "max_incoming_streams",
		},
		{name: "negative rate limit", modify: func(s *ServerConfig) { s.RateLimit = -1 }, wantErr: true, errMsg: "rate_limit"},
		{name: "missing burst", modify: func(s *ServerConfig) { s.RateBurst = 0 }, wantErr: true, errMsg: "rate_burst"},
		{name: "body limit", modify: func(s *ServerConfig) { s.MaxBodyBytes = 0 }, wantErr: true, errMsg: "max_body_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedisConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  RedisConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: RedisConfig{
				Addresses:    []string{"localhost:6379"},
				MaxRetries:   3,
				PoolSize:     100,
				MinIdleConns: 10,
			},
		},
		{
			name:    "missing addresses",
			config:  RedisConfig{Addresses: []string{}, PoolSize: 100},
			wantErr: true,
			errMsg:  "at least one Redis address is required",
		},
		{
			name:    "negative DB",
			config:  RedisConfig{Addresses: []string{"localhost:6379"}, DB: -1, PoolSize: 100},
			wantErr: true,
			errMsg:  "invalid Redis database number",
		},
		{
			name:    "zero pool size",
			config:  RedisConfig{Addresses: []string{"localhost:6379"}},
			wantErr: true,
			errMsg:  "pool_size must be positive",
		},
		{
			name:    "min idle conns greater than pool size",
			config:  RedisConfig{Addresses: []string{"localhost:6379"}, PoolSize: 10, MinIdleConns: 20},
			wantErr: true,
			errMsg:  "min_idle_conns cannot be greater than pool_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCacheConfigValidate(t *testing.T) {
	assert.NoError(t, (&CacheConfig{}).Validate(), "disabled cache needs nothing")
	assert.NoError(t, (&CacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "p:", MaxEntryBytes: 1}).Validate())
	assert.Error(t, (&CacheConfig{Enabled: true, KeyPrefix: "p:", MaxEntryBytes: 1}).Validate())
	assert.Error(t, (&CacheConfig{Enabled: true, TTL: time.Minute, MaxEntryBytes: 1}).Validate())
	assert.Error(t, (&CacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "p:"}).Validate())
}

func TestRTPConfigValidate(t *testing.T) {
	base := RTPConfig{
		Destination:  "127.0.0.1:5004",
		PayloadType:  96,
		PacketTime:   20 * time.Millisecond,
		RTCPInterval: 5 * time.Second,
	}

	tests := []struct {
		name    string
		modify  func(*RTPConfig)
		wantErr bool
	}{
		{"valid", func(*RTPConfig) {}, false},
		{"ipv6", func(r *RTPConfig) { r.Destination = "[::1]:5004" }, false},
		{"no port", func(r *RTPConfig) { r.Destination = "127.0.0.1" }, true},
		{"no host", func(r *RTPConfig) { r.Destination = ":5004" }, true},
		{"rtcp port overflow", func(r *RTPConfig) { r.Destination = "127.0.0.1:65535" }, true},
		{"static payload type", func(r *RTPConfig) { r.PayloadType = 11 }, true},
		{"packet time", func(r *RTPConfig) { r.PacketTime = time.Second }, true},
		{"rtcp interval", func(r *RTPConfig) { r.RTCPInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{"valid stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, false},
		{"valid file", LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/ltcgen.log", MaxSize: 10}, false},
		{"bad level", LoggingConfig{Level: "verbose", Format: "json", Output: "stdout"}, true},
		{"bad format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, true},
		{"file without max size", LoggingConfig{Level: "info", Format: "json", Output: "/tmp/x.log"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricsConfigValidate(t *testing.T) {
	assert.NoError(t, (&MetricsConfig{}).Validate())
	assert.NoError(t, (&MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"}).Validate())
	assert.Error(t, (&MetricsConfig{Enabled: true, Port: 0, Path: "/metrics"}).Validate())
	assert.Error(t, (&MetricsConfig{Enabled: true, Port: 9090}).Validate())
}
