package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid http port",
			mutate:   func(c *Config) { c.HTTP.Port = 0 },
			errorMsg: "http config",
		},
		{
			name:   "http port ignored when disabled",
			mutate: func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
		},
		{
			name:     "wrong sample rate",
			mutate:   func(c *Config) { c.Audio.SampleRate = 8000 },
			errorMsg: "sample_rate",
		},
		{
			name:     "zero mic threshold",
			mutate:   func(c *Config) { c.VAD.MicThreshold = 0 },
			errorMsg: "mic_threshold",
		},
		{
			name:     "loopback ratio above one",
			mutate:   func(c *Config) { c.VAD.LoopbackRatio = 1.5 },
			errorMsg: "loopback_ratio",
		},
		{
			name:     "max chunk shorter than min speech",
			mutate:   func(c *Config) { c.VAD.MaxChunkSeconds = 0.1 },
			errorMsg: "max_chunk_seconds",
		},
		{
			name:     "empty queue",
			mutate:   func(c *Config) { c.Mixer.QueueSize = 0 },
			errorMsg: "queue_size",
		},
		{
			name:     "levels not increasing",
			mutate:   func(c *Config) { c.Silence.LevelsSeconds = []int{60, 60, 120} },
			errorMsg: "levels_seconds",
		},
		{
			name:     "unknown cue",
			mutate:   func(c *Config) { c.Silence.Cue = "siren" },
			errorMsg: "cue",
		},
		{
			name:     "decay factor of one",
			mutate:   func(c *Config) { c.Meter.DecayFactor = 1 },
			errorMsg: "decay_factor",
		},
		{
			name:     "unknown provider",
			mutate:   func(c *Config) { c.Transcription.Provider = "grpc" },
			errorMsg: "provider",
		},
		{
			name:     "openai without key",
			mutate:   func(c *Config) { c.Transcription.Provider = "openai"; c.Transcription.APIKey = "" },
			errorMsg: "api_key",
		},
		{
			name:   "http without key",
			mutate: func(c *Config) { c.Transcription.APIKey = "" },
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error but got none")
				return
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
http:
  port: 9090
vad:
  mic_threshold: 0.01
silence:
  levels_seconds: [30, 45]
  cue: notify
transcription:
  provider: openai
  api_key: file-key
logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}

	if config.VAD.MicThreshold != 0.01 {
		t.Errorf("Expected mic threshold 0.01, got %f", config.VAD.MicThreshold)
	}

	// Keys absent from the file keep their defaults
	if config.VAD.SilenceMs != 400 {
		t.Errorf("Expected default silence 400ms, got %d", config.VAD.SilenceMs)
	}

	if config.Mixer.QueueSize != 20 {
		t.Errorf("Expected default queue size 20, got %d", config.Mixer.QueueSize)
	}

	if len(config.Silence.LevelsSeconds) != 2 || config.Silence.LevelsSeconds[0] != 30 {
		t.Errorf("Expected levels [30 45], got %v", config.Silence.LevelsSeconds)
	}

	if config.Transcription.APIKey != "file-key" {
		t.Errorf("Expected API key from file, got %q", config.Transcription.APIKey)
	}

	if config.Logging.Format != "json" {
		t.Errorf("Expected JSON log format, got %s", config.Logging.Format)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-key")

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := "transcription:\n  provider: openai\n"
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Transcription.APIKey != "env-key" {
		t.Errorf("Expected API key from environment, got %q", config.Transcription.APIKey)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}

	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	os.WriteFile(badYAML, []byte("http: [unclosed"), 0644)
	if _, err := Load(badYAML); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("mixer:\n  queue_size: 0\n"), 0644)
	_, err := Load(invalid)
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestMasked(t *testing.T) {
	cfg := Default()
	cfg.Transcription.APIKey = "secret"

	masked := cfg.Masked()
	if masked.Transcription.APIKey != "***" {
		t.Errorf("Expected masked key, got %q", masked.Transcription.APIKey)
	}
	if cfg.Transcription.APIKey != "secret" {
		t.Error("Masked must not modify the original")
	}

	masked.Silence.LevelsSeconds[0] = 1
	if cfg.Silence.LevelsSeconds[0] != 60 {
		t.Error("Masked must copy the levels slice")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"frame", cfg.Audio.GetFrameDuration(), 30 * time.Millisecond},
		{"read timeout", cfg.Audio.GetReadTimeoutDuration(), 100 * time.Millisecond},
		{"idle poll", cfg.Audio.GetIdlePollDuration(), 50 * time.Millisecond},
		{"silence", cfg.VAD.GetSilenceDuration(), 400 * time.Millisecond},
		{"min speech", cfg.VAD.GetMinSpeechDuration(), 200 * time.Millisecond},
		{"max chunk", cfg.VAD.GetMaxChunkDuration(), 6 * time.Second},
		{"poll", cfg.Mixer.GetPollTimeoutDuration(), 50 * time.Millisecond},
		{"ping", cfg.Silence.GetPingDuration(), 300 * time.Millisecond},
		{"ping gap", cfg.Silence.GetPingGapDuration(), 150 * time.Millisecond},
		{"meter window", cfg.Meter.GetWindowDuration(), 50 * time.Millisecond},
		{"meter tick", cfg.Meter.GetTickDuration(), 60 * time.Millisecond},
		{"meter grace", cfg.Meter.GetGraceDuration(), 200 * time.Millisecond},
		{"timeout", cfg.Transcription.GetTimeoutDuration(), 30 * time.Second},
		{"backoff", cfg.Transcription.GetRetryBackoffDuration(), time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, tt.got)
			}
		})
	}

	levels := cfg.Silence.GetLevelDurations()
	if len(levels) != 3 || levels[2] != 120*time.Second {
		t.Errorf("Unexpected levels %v", levels)
	}

	if got := cfg.VAD.LoopbackThreshold(); got < 0.00239 || got > 0.00241 {
		t.Errorf("Expected loopback threshold 0.0024, got %f", got)
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{"valid json to stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, true},
		{"valid text to file", LoggingConfig{Level: "debug", Format: "text", Output: "/tmp/voicecoach.log"}, true},
		{"invalid log level", LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}, false},
		{"invalid format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
