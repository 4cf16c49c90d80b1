package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides transcription.api_key when set
const APIKeyEnv = "VOICECOACH_API_KEY"

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Mixer         MixerConfig         `yaml:"mixer"`
	Silence       SilenceConfig       `yaml:"silence"`
	Meter         MeterConfig         `yaml:"meter"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Devices       DevicesConfig       `yaml:"devices"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains the internal audio format
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	FrameMs       int `yaml:"frame_ms"`
	BufferFrames  int `yaml:"buffer_frames"`   // capture callback -> reader channel
	ReadTimeoutMs int `yaml:"read_timeout_ms"` // per-read wait before checking for device requests
	IdlePollMs    int `yaml:"idle_poll_ms"`    // sleep while no device is attached
}

// VADConfig contains segmentation parameters
type VADConfig struct {
	MicThreshold    float64 `yaml:"mic_threshold"`
	LoopbackRatio   float64 `yaml:"loopback_ratio"` // loopback threshold = mic threshold * ratio
	SilenceMs       int     `yaml:"silence_ms"`
	MinSpeechMs     int     `yaml:"min_speech_ms"`
	MaxChunkSeconds float64 `yaml:"max_chunk_seconds"`
	PrerollFrames   int     `yaml:"preroll_frames"`
}

// MixerConfig contains queue and dispatch parameters
type MixerConfig struct {
	QueueSize       int     `yaml:"queue_size"`
	PollTimeoutMs   int     `yaml:"poll_timeout_ms"`
	GateMinRMS      float64 `yaml:"gate_min_rms"`
	GateMinPeak     float64 `yaml:"gate_min_peak"`
	TranscriptLines int     `yaml:"transcript_lines"`
}

// SilenceConfig contains the silence monitor and alert parameters
type SilenceConfig struct {
	LevelsSeconds  []int   `yaml:"levels_seconds"`
	SpeakThreshold float64 `yaml:"speak_threshold"`
	Cue            string  `yaml:"cue"` // beep, notify, both or none
	PingBaseHz     float64 `yaml:"ping_base_hz"`
	PingStepHz     float64 `yaml:"ping_step_hz"`
	PingDurationMs int     `yaml:"ping_duration_ms"`
	PingGapMs      int     `yaml:"ping_gap_ms"`
	PingVolume     float64 `yaml:"ping_volume"`
	PlayerWorkers  int     `yaml:"player_workers"`
	PlayerQueue    int     `yaml:"player_queue"`
}

// MeterConfig contains the speaker level meter parameters
type MeterConfig struct {
	WindowMs    int     `yaml:"window_ms"`
	TickMs      int     `yaml:"tick_ms"`
	GraceMs     int     `yaml:"grace_ms"`
	DecayFactor float64 `yaml:"decay_factor"`
	Snap        float64 `yaml:"snap"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Provider       string  `yaml:"provider"` // http or openai
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	Prompt         string  `yaml:"prompt"`
	Temperature    float32 `yaml:"temperature"`
	BeamSize       int     `yaml:"beam_size"`
	Timeout        int     `yaml:"timeout"` // seconds
	MaxRetries     int     `yaml:"max_retries"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	RetryBackoffMs int     `yaml:"retry_backoff_ms"`
}

// DevicesConfig selects the startup devices. An empty query picks the
// default device; "none" starts the worker without one.
type DevicesConfig struct {
	Mic            string `yaml:"mic"`
	Loopback       string `yaml:"loopback"`
	ReplayMic      string `yaml:"replay_mic"`      // WAV file used instead of the microphone
	ReplayLoopback string `yaml:"replay_loopback"` // WAV file used instead of loopback
	Realtime       bool   `yaml:"realtime"`        // pace replayed files at 30ms per frame
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DeviceNone disables a worker in DevicesConfig
const DeviceNone = "none"

// Default returns the configuration used for keys a file leaves out
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			FrameMs:       30,
			BufferFrames:  64,
			ReadTimeoutMs: 100,
			IdlePollMs:    50,
		},
		VAD: VADConfig{
			MicThreshold:    0.008,
			LoopbackRatio:   0.3,
			SilenceMs:       400,
			MinSpeechMs:     200,
			MaxChunkSeconds: 6,
			PrerollFrames:   10,
		},
		Mixer: MixerConfig{
			QueueSize:       20,
			PollTimeoutMs:   50,
			GateMinRMS:      0.002,
			GateMinPeak:     0.005,
			TranscriptLines: 200,
		},
		Silence: SilenceConfig{
			LevelsSeconds:  []int{60, 90, 120},
			SpeakThreshold: 0.0015,
			Cue:            "beep",
			PingBaseHz:     880,
			PingStepHz:     120,
			PingDurationMs: 300,
			PingGapMs:      150,
			PingVolume:     0.4,
			PlayerWorkers:  1,
			PlayerQueue:    4,
		},
		Meter: MeterConfig{
			WindowMs:    50,
			TickMs:      60,
			GraceMs:     200,
			DecayFactor: 0.88,
			Snap:        0.0001,
		},
		Transcription: TranscriptionConfig{
			Provider:       "http",
			Endpoint:       "http://127.0.0.1:9000/v1/audio/transcriptions",
			Model:          "whisper-1",
			BeamSize:       5,
			Timeout:        30,
			MaxRetries:     3,
			MaxConcurrent:  2,
			RetryBackoffMs: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file over the defaults. A .env
// file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv applies environment overrides
func (c *Config) ApplyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.Transcription.APIKey = key
	}
}

// Masked returns a copy safe to expose over the API
func (c *Config) Masked() Config {
	masked := *c
	masked.Silence.LevelsSeconds = append([]int(nil), c.Silence.LevelsSeconds...)
	if masked.Transcription.APIKey != "" {
		masked.Transcription.APIKey = "***"
	}
	return masked
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Mixer.Validate(); err != nil {
		return fmt.Errorf("mixer config: %w", err)
	}

	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}

	if err := c.Meter.Validate(); err != nil {
		return fmt.Errorf("meter config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.FrameMs != 30 {
		return fmt.Errorf("frame_ms must be 30, got %d", a.FrameMs)
	}

	if a.BufferFrames < 1 {
		return fmt.Errorf("buffer_frames must be at least 1, got %d", a.BufferFrames)
	}

	if a.ReadTimeoutMs < 10 {
		return fmt.Errorf("read_timeout_ms must be at least 10, got %d", a.ReadTimeoutMs)
	}

	if a.IdlePollMs < 1 {
		return fmt.Errorf("idle_poll_ms must be at least 1, got %d", a.IdlePollMs)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.MicThreshold <= 0 || v.MicThreshold > 1 {
		return fmt.Errorf("mic_threshold must be in (0, 1], got %f", v.MicThreshold)
	}

	if v.LoopbackRatio <= 0 || v.LoopbackRatio > 1 {
		return fmt.Errorf("loopback_ratio must be in (0, 1], got %f", v.LoopbackRatio)
	}

	if v.SilenceMs < 30 {
		return fmt.Errorf("silence_ms must be at least one frame (30), got %d", v.SilenceMs)
	}

	if v.MinSpeechMs < 30 {
		return fmt.Errorf("min_speech_ms must be at least one frame (30), got %d", v.MinSpeechMs)
	}

	if v.MaxChunkSeconds*1000 <= float64(v.MinSpeechMs) {
		return fmt.Errorf("max_chunk_seconds (%f) must exceed min_speech_ms (%d)", v.MaxChunkSeconds, v.MinSpeechMs)
	}

	if v.PrerollFrames < 0 {
		return fmt.Errorf("preroll_frames cannot be negative, got %d", v.PrerollFrames)
	}

	return nil
}

// Validate validates mixer configuration
func (m *MixerConfig) Validate() error {
	if m.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", m.QueueSize)
	}

	if m.PollTimeoutMs < 1 {
		return fmt.Errorf("poll_timeout_ms must be at least 1, got %d", m.PollTimeoutMs)
	}

	if m.GateMinRMS < 0 || m.GateMinPeak < 0 {
		return fmt.Errorf("gate thresholds cannot be negative, got rms %f peak %f", m.GateMinRMS, m.GateMinPeak)
	}

	if m.TranscriptLines < 1 {
		return fmt.Errorf("transcript_lines must be at least 1, got %d", m.TranscriptLines)
	}

	return nil
}

// Validate validates silence monitor configuration
func (s *SilenceConfig) Validate() error {
	if len(s.LevelsSeconds) == 0 {
		return fmt.Errorf("levels_seconds cannot be empty")
	}

	prev := 0
	for i, lvl := range s.LevelsSeconds {
		if lvl <= prev {
			return fmt.Errorf("levels_seconds must be positive and strictly increasing, got %d at index %d", lvl, i)
		}
		prev = lvl
	}

	if s.SpeakThreshold <= 0 || s.SpeakThreshold > 1 {
		return fmt.Errorf("speak_threshold must be in (0, 1], got %f", s.SpeakThreshold)
	}

	validCues := map[string]bool{"beep": true, "notify": true, "both": true, "none": true}
	if !validCues[s.Cue] {
		return fmt.Errorf("cue must be one of [beep, notify, both, none], got '%s'", s.Cue)
	}

	if s.PingBaseHz <= 0 || s.PingStepHz < 0 {
		return fmt.Errorf("ping frequencies must be positive, got base %f step %f", s.PingBaseHz, s.PingStepHz)
	}

	if s.PingDurationMs < 1 || s.PingGapMs < 0 {
		return fmt.Errorf("ping_duration_ms must be positive and ping_gap_ms non-negative")
	}

	if s.PingVolume <= 0 || s.PingVolume > 1 {
		return fmt.Errorf("ping_volume must be in (0, 1], got %f", s.PingVolume)
	}

	if s.PlayerWorkers < 1 || s.PlayerQueue < 1 {
		return fmt.Errorf("player_workers and player_queue must be at least 1")
	}

	return nil
}

// Validate validates meter configuration
func (m *MeterConfig) Validate() error {
	if m.WindowMs < 1 || m.TickMs < 1 {
		return fmt.Errorf("window_ms and tick_ms must be positive")
	}

	if m.GraceMs < 0 {
		return fmt.Errorf("grace_ms cannot be negative, got %d", m.GraceMs)
	}

	if m.DecayFactor <= 0 || m.DecayFactor >= 1 {
		return fmt.Errorf("decay_factor must be in (0, 1), got %f", m.DecayFactor)
	}

	if m.Snap <= 0 {
		return fmt.Errorf("snap must be positive, got %f", m.Snap)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validProviders := map[string]bool{"http": true, "openai": true}
	if !validProviders[t.Provider] {
		return fmt.Errorf("provider must be 'http' or 'openai', got '%s'", t.Provider)
	}

	if t.Provider == "http" && t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty for the http provider")
	}

	if t.Provider == "openai" && t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty for the openai provider (set %s)", APIKeyEnv)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.BeamSize < 0 {
		return fmt.Errorf("beam_size cannot be negative, got %d", t.BeamSize)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is a file path
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// GetReadTimeoutDuration returns the per-read wait as a time.Duration
func (a *AudioConfig) GetReadTimeoutDuration() time.Duration {
	return millis(a.ReadTimeoutMs)
}

// GetIdlePollDuration returns the idle poll as a time.Duration
func (a *AudioConfig) GetIdlePollDuration() time.Duration {
	return millis(a.IdlePollMs)
}

// GetFrameDuration returns the frame length as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return millis(a.FrameMs)
}

// GetSilenceDuration returns the end-of-utterance silence as a time.Duration
func (v *VADConfig) GetSilenceDuration() time.Duration {
	return millis(v.SilenceMs)
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return millis(v.MinSpeechMs)
}

// GetMaxChunkDuration returns the segment cap as a time.Duration
func (v *VADConfig) GetMaxChunkDuration() time.Duration {
	return time.Duration(v.MaxChunkSeconds * float64(time.Second))
}

// LoopbackThreshold returns the loopback RMS threshold
func (v *VADConfig) LoopbackThreshold() float64 {
	return v.MicThreshold * v.LoopbackRatio
}

// GetPollTimeoutDuration returns the dispatcher poll as a time.Duration
func (m *MixerConfig) GetPollTimeoutDuration() time.Duration {
	return millis(m.PollTimeoutMs)
}

// GetLevelDurations returns the silence levels as durations
func (s *SilenceConfig) GetLevelDurations() []time.Duration {
	levels := make([]time.Duration, len(s.LevelsSeconds))
	for i, sec := range s.LevelsSeconds {
		levels[i] = time.Duration(sec) * time.Second
	}
	return levels
}

// GetPingDuration returns the length of one ping as a time.Duration
func (s *SilenceConfig) GetPingDuration() time.Duration {
	return millis(s.PingDurationMs)
}

// GetPingGapDuration returns the pause between pings as a time.Duration
func (s *SilenceConfig) GetPingGapDuration() time.Duration {
	return millis(s.PingGapMs)
}

// GetWindowDuration returns the meter window as a time.Duration
func (m *MeterConfig) GetWindowDuration() time.Duration {
	return millis(m.WindowMs)
}

// GetTickDuration returns the decay tick as a time.Duration
func (m *MeterConfig) GetTickDuration() time.Duration {
	return millis(m.TickMs)
}

// GetGraceDuration returns the decay grace as a time.Duration
func (m *MeterConfig) GetGraceDuration() time.Duration {
	return millis(m.GraceMs)
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetRetryBackoffDuration returns the first retry delay as a time.Duration
func (t *TranscriptionConfig) GetRetryBackoffDuration() time.Duration {
	return millis(t.RetryBackoffMs)
}
