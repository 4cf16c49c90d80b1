package monitor

import (
	"sync"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// MeterConfig holds the level meter settings
type MeterConfig struct {
	Window      time.Duration // RMS window scanned by Push
	DecayFactor float64       // Multiplier applied per Decay call
	Grace       time.Duration // No decay until this long after the last push
	Snap        float64       // Values below this become 0
}

// DefaultMeterConfig returns the meter settings tuned for a 60ms UI tick
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		Window:      50 * time.Millisecond,
		DecayFactor: 0.88,
		Grace:       200 * time.Millisecond,
		Snap:        0.0001,
	}
}

// LevelMeter is a peak-hold meter. Push only ever raises the held peak;
// Decay, called on a fixed external tick, lowers it once pushes stop.
type LevelMeter struct {
	config MeterConfig
	now    func() time.Time

	mu       sync.Mutex
	peak     float64
	lastPush time.Time
}

// NewLevelMeter creates a meter at zero
func NewLevelMeter(config MeterConfig) *LevelMeter {
	def := DefaultMeterConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.DecayFactor <= 0 || config.DecayFactor >= 1 {
		config.DecayFactor = def.DecayFactor
	}
	if config.Grace < 0 {
		config.Grace = def.Grace
	}
	if config.Snap <= 0 {
		config.Snap = def.Snap
	}
	return &LevelMeter{config: config, now: time.Now}
}

// SetClock replaces the time source. Call before use.
func (m *LevelMeter) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Push scans samples in fixed windows and raises the peak to the loudest
// window's RMS.
func (m *LevelMeter) Push(samples []float32, sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	window := max(1, int(float64(sampleRate)*m.config.Window.Seconds()))

	peak := 0.0
	for start := 0; start < len(samples); start += window {
		end := min(start+window, len(samples))
		if rms := audio.RMS(samples[start:end]); rms > peak {
			peak = rms
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if peak > m.peak {
		m.peak = peak
	}
	m.lastPush = m.now()
}

// Decay lowers the peak when the grace period has passed since the last
// push and returns the resulting level.
func (m *LevelMeter) Decay() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().Sub(m.lastPush) > m.config.Grace {
		m.peak *= m.config.DecayFactor
		if m.peak < m.config.Snap {
			m.peak = 0
		}
	}
	return m.peak
}

// Level returns the held peak
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Reset drops the meter to zero
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peak = 0
	m.lastPush = time.Time{}
}
