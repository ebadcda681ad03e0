package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/wire"
)

// Config is the device daemon configuration. Environment variables override
// the YAML file.
type Config struct {
	GatewayURL string `yaml:"gateway_url"`
	DeviceID   string `yaml:"device_id"`
	ToyID      string `yaml:"toy_id"`
	AuthToken  string `yaml:"auth_token"`
	LogLevel   string `yaml:"log_level"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Audio     AudioConfig     `yaml:"audio"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ReconnectConfig bounds the transport backoff.
type ReconnectConfig struct {
	Attempts int `yaml:"attempts"`

	// Delay is the backoff base, e.g. "2s"; it doubles per attempt.
	Delay jsontime.Duration `yaml:"delay"`
}

// AudioConfig describes the device's audio I/O.
type AudioConfig struct {
	// Format is the uplink codec, "pcm16" or "opus".
	Format string `yaml:"format"`

	// SampleRate is the capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// PlaybackRate resamples playback for the speaker when non-zero.
	// Bluetooth sinks typically want 48000.
	PlaybackRate int `yaml:"playback_rate"`

	// MicPath and SpeakerPath are the PCM16 I/O endpoints. "-" selects
	// stdin/stdout for piping from arecord and into aplay.
	MicPath     string `yaml:"mic_path"`
	SpeakerPath string `yaml:"speaker_path"`
}

// CacheConfig controls the on-device conversation store.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Format:      wire.FormatPCM16,
			SampleRate:  16000,
			MicPath:     "-",
			SpeakerPath: "-",
		},
		Cache: CacheConfig{
			Dir: "/var/lib/toyd/conversations",
		},
	}
}

// loadConfig reads the YAML file at path (when non-empty) over the
// defaults, then applies environment overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	envStr(&cfg.GatewayURL, "GATEWAY_URL")
	envStr(&cfg.DeviceID, "DEVICE_ID")
	envStr(&cfg.ToyID, "TOY_ID")
	envStr(&cfg.AuthToken, "AUTH_TOKEN")
	envStr(&cfg.LogLevel, "LOG_LEVEL")

	envInt(&cfg.Reconnect.Attempts, "RECONNECT_ATTEMPTS")
	envDur(&cfg.Reconnect.Delay, "RECONNECT_DELAY")

	envStr(&cfg.Audio.Format, "AUDIO_FORMAT")
	envInt(&cfg.Audio.SampleRate, "SAMPLE_RATE")
	envInt(&cfg.Audio.PlaybackRate, "PLAYBACK_RATE")
	envStr(&cfg.Audio.MicPath, "MIC_PATH")
	envStr(&cfg.Audio.SpeakerPath, "SPEAKER_PATH")

	envBool(&cfg.Cache.Enabled, "ENABLE_OFFLINE_MODE")
	envStr(&cfg.Cache.Dir, "CACHE_DIR")

	if cfg.GatewayURL == "" {
		return cfg, fmt.Errorf("gateway_url (or GATEWAY_URL) is required")
	}
	if cfg.DeviceID == "" || cfg.ToyID == "" {
		return cfg, fmt.Errorf("device_id and toy_id are required")
	}
	switch cfg.Audio.Format {
	case wire.FormatPCM16, wire.FormatOpus:
	default:
		return cfg, fmt.Errorf("audio.format %q: want %q or %q", cfg.Audio.Format, wire.FormatPCM16, wire.FormatOpus)
	}
	return cfg, nil
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// envDur accepts a duration string ("2s") or a bare second count.
func envDur(dst *jsontime.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = jsontime.Duration(d)
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = jsontime.Duration(time.Duration(n) * time.Second)
	}
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log_level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})))
	return nil
}
