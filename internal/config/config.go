package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the commentary engine
type Config struct {
	// Upstream API configuration
	APIBaseURL  string `envconfig:"API_BASE_URL" required:"true"` // e.g. http://192.168.18.120:8000
	WSAuthToken string `envconfig:"WS_AUTH_TOKEN" default:""`     // Optional bearer token for the push channel
	MatchID     string `envconfig:"MATCH_ID" default:""`          // Optional; discovered from the current-match endpoint when unset

	// TTS provider configuration
	TTSAPIKey         string `envconfig:"TTS_API_KEY" required:"true"`
	TTSVoiceID        string `envconfig:"TTS_VOICE_ID" default:"PSk5GhCjavRcRMo6NtjK"`
	TTSModelID        string `envconfig:"TTS_MODEL_ID" default:"eleven_multilingual_v2"`
	TTSBaseURL        string `envconfig:"TTS_BASE_URL" default:"https://api.elevenlabs.io"`
	TTSTimeoutSeconds int    `envconfig:"TTS_TIMEOUT_SECONDS" default:"8"` // Deadline for the first streamed byte

	// Audio configuration
	SampleRate          int     `envconfig:"SAMPLE_RATE" default:"22050"`
	NominalAmbienceGain float64 `envconfig:"NOMINAL_AMBIENCE_GAIN" default:"0.30"`
	DuckedAmbienceGain  float64 `envconfig:"DUCKED_AMBIENCE_GAIN" default:"0.08"`
	DuckRampMs          int     `envconfig:"DUCK_RAMP_MS" default:"200"`
	AmbiencePath        string  `envconfig:"AMBIENCE_PATH" default:"background_audio/crowd_22050.wav"`

	// Persistence
	StatePath       string `envconfig:"STATE_PATH" default:"state/runtime_state.json"`
	AudioHistoryDir string `envconfig:"AUDIO_HISTORY_DIR" default:"audio_history"`
	HistoryDBPath   string `envconfig:"HISTORY_DB_PATH" default:"data/audio_history.db"`
	SaveAudio       bool   `envconfig:"SAVE_AUDIO" default:"true"`

	// Stream client reconnection
	ReconnectInitialMs int `envconfig:"RECONNECT_INITIAL_MS" default:"1000"`
	ReconnectMaxMs     int `envconfig:"RECONNECT_MAX_MS" default:"30000"`

	// Observability configuration
	MetricsPort    string `envconfig:"METRICS_PORT" default:"9090"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`   // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"` // Pretty print logs (for development)
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural sanity of the configuration beyond
// what envconfig's required tags cover
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.TTSAPIKey == "" {
		return fmt.Errorf("TTS_API_KEY is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.NominalAmbienceGain < 0 || c.NominalAmbienceGain > 1 {
		return fmt.Errorf("NOMINAL_AMBIENCE_GAIN must be in [0,1], got %f", c.NominalAmbienceGain)
	}
	if c.DuckedAmbienceGain < 0 || c.DuckedAmbienceGain > c.NominalAmbienceGain {
		return fmt.Errorf("DUCKED_AMBIENCE_GAIN must be in [0, nominal], got %f", c.DuckedAmbienceGain)
	}
	if c.DuckRampMs <= 0 {
		return fmt.Errorf("DUCK_RAMP_MS must be positive, got %d", c.DuckRampMs)
	}
	if c.TTSTimeoutSeconds <= 0 {
		return fmt.Errorf("TTS_TIMEOUT_SECONDS must be positive, got %d", c.TTSTimeoutSeconds)
	}
	if c.ReconnectInitialMs <= 0 || c.ReconnectMaxMs < c.ReconnectInitialMs {
		return fmt.Errorf("reconnect backoff bounds invalid: initial=%dms max=%dms", c.ReconnectInitialMs, c.ReconnectMaxMs)
	}
	return nil
}

// TTSTimeout returns the first-byte deadline as a duration
func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTSTimeoutSeconds) * time.Second
}

// ReconnectInitial returns the initial reconnect backoff as a duration
func (c *Config) ReconnectInitial() time.Duration {
	return time.Duration(c.ReconnectInitialMs) * time.Millisecond
}

// ReconnectMax returns the reconnect backoff ceiling as a duration
func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMs) * time.Millisecond
}
