package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("GEMINI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when GEMINI_API_KEY is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.GeminiModel != "gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Errorf("Unexpected default GeminiModel '%s'", cfg.GeminiModel)
	}

	if cfg.AgentVoice != "Kore" {
		t.Errorf("Expected default AgentVoice 'Kore', got '%s'", cfg.AgentVoice)
	}

	if cfg.CaptureSampleRate != 16000 {
		t.Errorf("Expected default CaptureSampleRate 16000, got %d", cfg.CaptureSampleRate)
	}

	if cfg.PlaybackSampleRate != 24000 {
		t.Errorf("Expected default PlaybackSampleRate 24000, got %d", cfg.PlaybackSampleRate)
	}

	if cfg.VolumeGain != 5.0 {
		t.Errorf("Expected default VolumeGain 5.0, got %f", cfg.VolumeGain)
	}

	if cfg.ActivityThreshold != 0.05 {
		t.Errorf("Expected default ActivityThreshold 0.05, got %f", cfg.ActivityThreshold)
	}

	if cfg.WatchdogTimeout != 10 {
		t.Errorf("Expected default WatchdogTimeout 10, got %d", cfg.WatchdogTimeout)
	}

	if cfg.LeadsTable != "leads" {
		t.Errorf("Expected default LeadsTable 'leads', got '%s'", cfg.LeadsTable)
	}
}

func TestLoad_InvalidWatchdogTimeout(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Setenv("WATCHDOG_TIMEOUT", "0")
	defer os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("WATCHDOG_TIMEOUT")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for WATCHDOG_TIMEOUT=0")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_ENV_VAR", "value")
	defer os.Unsetenv("TEST_ENV_VAR")

	if got := GetEnv("TEST_ENV_VAR", "fallback"); got != "value" {
		t.Errorf("Expected 'value', got '%s'", got)
	}

	if got := GetEnv("TEST_ENV_VAR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Expected 'fallback', got '%s'", got)
	}
}
