package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice agent gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Gemini Live API configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	AgentVoice   string `envconfig:"AGENT_VOICE" default:"Kore"` // Prebuilt voice name
	AgentLocale  string `envconfig:"AGENT_LOCALE" default:"es-CL"`
	AgentTZ      string `envconfig:"AGENT_TZ" default:"America/Santiago"`

	// Lead store (Postgres) configuration
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	LeadsTable  string `envconfig:"LEADS_TABLE" default:"leads"`

	// Audio configuration
	CaptureSampleRate  int     `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`  // Mic capture rate in Hz
	PlaybackSampleRate int     `envconfig:"PLAYBACK_SAMPLE_RATE" default:"24000"` // Agent audio rate in Hz
	VolumeGain         float64 `envconfig:"VOLUME_GAIN" default:"5.0"`            // RMS-to-volume gain factor
	ActivityThreshold  float64 `envconfig:"ACTIVITY_THRESHOLD" default:"0.05"`    // Volume above this counts as speech

	// Session configuration
	WatchdogTimeout int `envconfig:"WATCHDOG_TIMEOUT" default:"10"` // Seconds of silence before auto-disconnect

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.WatchdogTimeout <= 0 {
		return nil, fmt.Errorf("WATCHDOG_TIMEOUT must be positive, got %d", cfg.WatchdogTimeout)
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
