package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Generator GeneratorConfig `mapstructure:"generator"`
	Timecode  TimecodeConfig  `mapstructure:"timecode"`
	UserBits  UserBitsConfig  `mapstructure:"user_bits"`
	Output    OutputConfig    `mapstructure:"output"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RTP       RTPConfig       `mapstructure:"rtp"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type GeneratorConfig struct {
	FPS         string        `mapstructure:"fps"` // 24, 25, 29.97, 30, 59.94, 60
	SampleRate  int           `mapstructure:"sample_rate"`
	DropFrame   bool          `mapstructure:"drop_frame"`
	ColorFrame  bool          `mapstructure:"color_frame"`
	Amplitude   float64       `mapstructure:"amplitude"` // (0, 1]
	BitDepth    int           `mapstructure:"bit_depth"` // 16 or 24
	Workers     int           `mapstructure:"workers"`   // >1 modulates in parallel
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

type TimecodeConfig struct {
	Start       string  `mapstructure:"start"`        // HH:MM:SS:FF
	CurrentTime bool    `mapstructure:"current_time"` // start from the wall clock instead
	Duration    float64 `mapstructure:"duration"`     // seconds
}

type UserBitsConfig struct {
	Groups       []int  `mapstructure:"groups"` // four 8-bit values, raw mode
	Date         string `mapstructure:"date"`
	Timezone     string `mapstructure:"timezone"`
	Reel         *int   `mapstructure:"reel"`
	Camera       string `mapstructure:"camera"`
	BinaryGroups int    `mapstructure:"binary_groups"`
	Field1       *int   `mapstructure:"field1"`
}

type OutputConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	// HTTP/1.1
	HTTPPort int `mapstructure:"http_port"`

	// HTTP/3, enabled when both TLS files are set
	HTTP3Port       int           `mapstructure:"http3_port"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// QUIC specific
	MaxIncomingStreams    int64         `mapstructure:"max_incoming_streams"`
	MaxIncomingUniStreams int64         `mapstructure:"max_incoming_uni_streams"`
	MaxIdleTimeout        time.Duration `mapstructure:"max_idle_timeout"`

	// API limits
	RateLimit    float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst    int     `mapstructure:"rate_burst"`
	MaxBodyBytes int64   `mapstructure:"max_body_bytes"`
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// CacheConfig controls the Redis render cache. Redis is only dialled when
// the cache is enabled.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	MaxEntryBytes int64         `mapstructure:"max_entry_bytes"`
}

type RTPConfig struct {
	Destination  string        `mapstructure:"destination"` // host:port, RTCP goes to port+1
	PayloadType  uint8         `mapstructure:"payload_type"`
	PacketTime   time.Duration `mapstructure:"packet_time"`
	SSRC         uint32        `mapstructure:"ssrc"` // 0 picks a random one
	RTCPInterval time.Duration `mapstructure:"rtcp_interval"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Load reads configPath, applies LTCGEN_* environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("LTCGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)
	if err := bindUserBitsEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// userBitsKeys have no default, so AutomaticEnv alone would never surface
// them to Unmarshal.
var userBitsKeys = []string{
	"user_bits.groups",
	"user_bits.date",
	"user_bits.timezone",
	"user_bits.reel",
	"user_bits.camera",
	"user_bits.field1",
}

func bindUserBitsEnv(v *viper.Viper) error {
	for _, key := range userBitsKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Generator defaults
	v.SetDefault("generator.fps", "30")
	v.SetDefault("generator.sample_rate", 48000)
	v.SetDefault("generator.drop_frame", false)
	v.SetDefault("generator.color_frame", false)
	v.SetDefault("generator.amplitude", 1.0)
	v.SetDefault("generator.bit_depth", 16)
	v.SetDefault("generator.workers", 0)
	v.SetDefault("generator.max_duration", "10m")

	// Timecode defaults
	v.SetDefault("timecode.start", "00:00:00:00")
	v.SetDefault("timecode.current_time", false)
	v.SetDefault("timecode.duration", 5.0)

	// User bits default to all zero
	v.SetDefault("user_bits.binary_groups", 0)

	// Output defaults
	v.SetDefault("output.path", "ltc_output.wav")

	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.http3_port", 8443)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_incoming_streams", 1000)
	v.SetDefault("server.max_incoming_uni_streams", 100)
	v.SetDefault("server.max_idle_timeout", "30s")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Redis defaults
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.key_prefix", "ltcgen:render:")
	v.SetDefault("cache.max_entry_bytes", 64<<20)

	// RTP defaults
	v.SetDefault("rtp.destination", "127.0.0.1:5004")
	v.SetDefault("rtp.payload_type", 96)
	v.SetDefault("rtp.packet_time", "10ms")
	v.SetDefault("rtp.ssrc", 0)
	v.SetDefault("rtp.rtcp_interval", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)
}
