package monitor

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/events"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
	"github.com/Marabunta159/VoiceCoach/internal/vad"
)

// DefaultSpeakThreshold is the RMS at which the microphone counts as
// speaking (50 on the int16 scale).
const DefaultSpeakThreshold = 0.0015

// DefaultSilenceLevels are the escalation thresholds
var DefaultSilenceLevels = []time.Duration{60 * time.Second, 90 * time.Second, 120 * time.Second}

// Alerter plays the cue for a level without blocking the caller
type Alerter interface {
	Trigger(level int) bool
}

// SilenceMonitor escalates a level as microphone silence outlasts each
// threshold and drops back to zero on speech. Each level fires its cue at
// most once per uninterrupted silence span.
type SilenceMonitor struct {
	thresholds []time.Duration
	classifier *vad.Classifier
	alerter    Alerter
	publish    func(events.Silence)
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu         sync.Mutex
	level      int
	lastSpeech time.Time
	fired      map[int]bool

	levelSnap  atomic.Int64
	speechSnap atomic.Int64 // unix nanos
}

// SilenceConfig holds the monitor settings
type SilenceConfig struct {
	Levels         []time.Duration
	SpeakThreshold float64
}

// NewSilenceMonitor creates a monitor. The silence clock starts now.
// alerter and publish may be nil.
func NewSilenceMonitor(config SilenceConfig, alerter Alerter, publish func(events.Silence), logger *slog.Logger, m *metrics.Metrics) *SilenceMonitor {
	levels := slices.Clone(config.Levels)
	if len(levels) == 0 {
		levels = slices.Clone(DefaultSilenceLevels)
	}
	slices.Sort(levels)

	threshold := config.SpeakThreshold
	if threshold <= 0 {
		threshold = DefaultSpeakThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publish == nil {
		publish = func(events.Silence) {}
	}

	s := &SilenceMonitor{
		thresholds: levels,
		classifier: vad.NewClassifier(threshold),
		alerter:    alerter,
		publish:    publish,
		logger:     logger.With(slog.String("component", "silence_monitor")),
		metrics:    m,
		now:        time.Now,
		fired:      make(map[int]bool),
	}
	s.setLastSpeech(s.now())
	return s
}

// SetClock replaces the time source. Call before use.
func (s *SilenceMonitor) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.setLastSpeech(now())
}

func (s *SilenceMonitor) setLastSpeech(t time.Time) {
	s.lastSpeech = t
	s.speechSnap.Store(t.UnixNano())
}

func (s *SilenceMonitor) setLevel(level int) {
	s.level = level
	s.levelSnap.Store(int64(level))
	s.metrics.SetSilenceLevel(level)
}

// Observe processes one microphone frame captured at now.
func (s *SilenceMonitor) Observe(frame audio.Frame, now time.Time) {
	speaking := s.classifier.Classify(frame)

	s.mu.Lock()
	if speaking {
		s.setLastSpeech(now)
		if s.level == 0 {
			s.mu.Unlock()
			return
		}
		s.setLevel(0)
		clear(s.fired)
		s.mu.Unlock()

		s.logger.Debug("Speech resumed, silence level reset")
		s.publish(events.Silence{Level: 0, ElapsedSeconds: 0})
		return
	}

	elapsed := now.Sub(s.lastSpeech)
	level := 0
	for _, t := range s.thresholds {
		if elapsed >= t {
			level++
		}
	}

	if level == s.level {
		s.mu.Unlock()
		return
	}
	s.setLevel(level)
	alert := level > 0 && !s.fired[level]
	if alert {
		s.fired[level] = true
	}
	s.mu.Unlock()

	s.logger.Info("Silence level changed",
		slog.Int("level", level),
		slog.Float64("elapsed_seconds", elapsed.Seconds()),
	)
	s.publish(events.Silence{Level: level, ElapsedSeconds: elapsed.Seconds()})

	if alert && s.alerter != nil {
		if !s.alerter.Trigger(level) {
			s.logger.Warn("Alert cue dropped", slog.Int("level", level))
		}
	}
}

// Reset returns to level zero, forgets fired alerts and restarts the
// silence clock. Observers are notified even when the level was already 0.
func (s *SilenceMonitor) Reset() {
	s.mu.Lock()
	s.setLevel(0)
	clear(s.fired)
	s.setLastSpeech(s.now())
	s.mu.Unlock()

	s.publish(events.Silence{Level: 0, ElapsedSeconds: 0})
}

// Level returns the current escalation level
func (s *SilenceMonitor) Level() int {
	return int(s.levelSnap.Load())
}

// SinceLastSpeech returns the time elapsed since the last speech frame
func (s *SilenceMonitor) SinceLastSpeech() time.Duration {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()
	return now().Sub(time.Unix(0, s.speechSnap.Load()))
}

// Thresholds returns the sorted escalation thresholds
func (s *SilenceMonitor) Thresholds() []time.Duration {
	return slices.Clone(s.thresholds)
}

// Classifier returns the speak-threshold classifier
func (s *SilenceMonitor) Classifier() *vad.Classifier {
	return s.classifier
}
