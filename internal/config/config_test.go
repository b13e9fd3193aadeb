package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/ltc"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ltcgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "30", cfg.Generator.FPS)
	assert.Equal(t, ltc.Rate30, cfg.Generator.Rate())
	assert.Equal(t, 48000, cfg.Generator.SampleRate)
	assert.Equal(t, 1.0, cfg.Generator.Amplitude)
	assert.Equal(t, 16, cfg.Generator.BitDepth)
	assert.Equal(t, 10*time.Minute, cfg.Generator.MaxDuration)
	assert.Equal(t, "00:00:00:00", cfg.Timecode.Start)
	assert.Equal(t, 5.0, cfg.Timecode.Duration)
	assert.Equal(t, "ltc_output.wav", cfg.Output.Path)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.False(t, cfg.Server.TLSEnabled())
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, uint8(96), cfg.RTP.PayloadType)
	assert.Equal(t, 10*time.Millisecond, cfg.RTP.PacketTime)
	payload := 2 * cfg.Generator.SampleRate * int(cfg.RTP.PacketTime/time.Millisecond) / 1000
	assert.LessOrEqual(t, payload, 1500-20-8-12, "default L16 payload fits one MTU")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
generator:
  fps: 29.97
  sample_rate: 44100
  drop_frame: true
  bit_depth: 24
  workers: 4

timecode:
  start: "01:00:00;00"
  duration: 2.5

user_bits:
  date: "2024-03-09"
  timezone: "UTC+1"
  binary_groups: 1
  field1: 7

output:
  path: "/tmp/out.wav"

cache:
  enabled: true
  ttl: 1m

logging:
  level: "debug"
  format: "text"

metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ltc.Rate2997, cfg.Generator.Rate())
	assert.Equal(t, 44100, cfg.Generator.SampleRate)
	assert.True(t, cfg.Generator.DropFrame)
	assert.Equal(t, 24, cfg.Generator.BitDepth)
	assert.Equal(t, 4, cfg.Generator.Workers)
	assert.Equal(t, "01:00:00;00", cfg.Timecode.Start)
	assert.Equal(t, 2.5, cfg.Timecode.Duration)
	assert.Equal(t, "/tmp/out.wav", cfg.Output.Path)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)

	in, err := cfg.UserBits.Input()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", in.Date)
	require.NotNil(t, in.BinaryGroups)
	assert.Equal(t, 1, *in.BinaryGroups)
	require.NotNil(t, in.Field1)
	assert.Equal(t, 7, *in.Field1)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LTCGEN_GENERATOR_FPS", "25")
	t.Setenv("LTCGEN_TIMECODE_DURATION", "1.5")
	t.Setenv("LTCGEN_OUTPUT_PATH", "env.wav")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ltc.Rate25, cfg.Generator.Rate())
	assert.Equal(t, 1.5, cfg.Timecode.Duration)
	assert.Equal(t, "env.wav", cfg.Output.Path)
}

func TestLoadEnvOverride_UserBits(t *testing.T) {
	t.Setenv("LTCGEN_GENERATOR_FPS", "25")
	t.Setenv("LTCGEN_USER_BITS_DATE", "2024-12-25")
	t.Setenv("LTCGEN_USER_BITS_TIMEZONE", "UTC+9")
	t.Setenv("LTCGEN_USER_BITS_REEL", "12")
	t.Setenv("LTCGEN_USER_BITS_CAMERA", "CAMA")
	t.Setenv("LTCGEN_USER_BITS_FIELD1", "3")
	t.Setenv("LTCGEN_USER_BITS_BINARY_GROUPS", "255")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "25", cfg.Generator.FPS)
	assert.Equal(t, "2024-12-25", cfg.UserBits.Date)
	assert.Equal(t, "UTC+9", cfg.UserBits.Timezone)
	assert.Equal(t, "CAMA", cfg.UserBits.Camera)
	require.NotNil(t, cfg.UserBits.Reel)
	assert.Equal(t, 12, *cfg.UserBits.Reel)
	require.NotNil(t, cfg.UserBits.Field1)
	assert.Equal(t, 3, *cfg.UserBits.Field1)
	assert.Equal(t, 255, cfg.UserBits.BinaryGroups)

	in, err := cfg.UserBits.Input()
	require.NoError(t, err)
	ub, err := ltc.NewUserBits(in)
	require.NoError(t, err)
	assert.Equal(t, [4]uint8{0x12, 0x25, 0x89, 0x12}, ub.Groups())
}

func TestLoadEnvOverride_UserGroups(t *testing.T) {
	t.Setenv("LTCGEN_USER_BITS_GROUPS", "1,2,3,4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, cfg.UserBits.Groups)
	assert.Nil(t, cfg.UserBits.Reel)
	assert.Nil(t, cfg.UserBits.Field1)
}

func TestLoadDropFrameOnUnsupportedRate(t *testing.T) {
	path := writeConfig(t, `
generator:
  fps: 25
  drop_frame: true
`)

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown frame rate",
			content: "generator:\n  fps: 23.976\n",
			errMsg:  "unsupported frame rate",
		},
		{
			name:    "bad start timecode",
			content: "timecode:\n  start: \"01:00\"\n",
			errMsg:  "must be HH:MM:SS:FF",
		},
		{
			name:    "duration over limit",
			content: "timecode:\n  duration: 1200\n",
			errMsg:  "exceeds max_duration",
		},
		{
			name:    "raw and semantic user bits",
			content: "user_bits:\n  groups: [1, 2, 3, 4]\n  camera: \"A\"\n",
			errMsg:  "mutually exclusive",
		},
		{
			name:    "bad yaml",
			content: "generator: [",
			errMsg:  "failed to read config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
