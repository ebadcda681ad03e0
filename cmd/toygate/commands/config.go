package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/pommai/toygate/pkg/jsontime"
)

// Config is the full server configuration. Every field can come from the
// YAML file; environment variables override the file so deployments can
// keep secrets out of it.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// SkipTTS disables synthesis; the backend's own audio is relayed
	// instead. Used in test deployments.
	SkipTTS bool `yaml:"skip_tts"`

	Convex ConvexConfig `yaml:"convex"`
	TTS    TTSConfig    `yaml:"tts"`
}

// ConvexConfig points at the AI backend deployment.
type ConvexConfig struct {
	URL       string `yaml:"url"`
	DeployKey string `yaml:"deploy_key"`

	// ActionTimeout bounds one pipeline call, e.g. "55s".
	ActionTimeout jsontime.Duration `yaml:"action_timeout"`
}

// TTSConfig selects and configures synthesis providers. A provider is
// registered only when its API key is set.
type TTSConfig struct {
	// DefaultProvider pins the fallback provider. Empty selects by the
	// registry's built-in preference order.
	DefaultProvider string `yaml:"default_provider"`

	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	MiniMax    MiniMaxConfig    `yaml:"minimax"`
}

// ElevenLabsConfig holds the ElevenLabs credentials and voice defaults.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

// MiniMaxConfig holds the MiniMax credentials.
type MiniMaxConfig struct {
	APIKey  string `yaml:"api_key"`
	GroupID string `yaml:"group_id"`
}

func defaultConfig() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8080,
		LogLevel: "info",
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

	envStr(&cfg.Host, "HOST")
	envInt(&cfg.Port, "PORT")
	envStr(&cfg.LogLevel, "LOG_LEVEL")
	envBool(&cfg.SkipTTS, "SKIP_TTS")

	envStr(&cfg.Convex.URL, "CONVEX_URL")
	envStr(&cfg.Convex.DeployKey, "CONVEX_DEPLOY_KEY")
	envDur(&cfg.Convex.ActionTimeout, "CONVEX_ACTION_TIMEOUT")

	envStr(&cfg.TTS.DefaultProvider, "TTS_DEFAULT_PROVIDER")
	envStr(&cfg.TTS.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	envStr(&cfg.TTS.ElevenLabs.VoiceID, "ELEVENLABS_VOICE_ID")
	envStr(&cfg.TTS.ElevenLabs.ModelID, "ELEVENLABS_MODEL_ID")
	envStr(&cfg.TTS.MiniMax.APIKey, "MINIMAX_API_KEY")
	envStr(&cfg.TTS.MiniMax.GroupID, "MINIMAX_GROUP_ID")

	if cfg.Convex.URL == "" {
		return cfg, fmt.Errorf("convex.url (or CONVEX_URL) is required")
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

// envDur accepts a duration string ("55s") or a bare second count.
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
