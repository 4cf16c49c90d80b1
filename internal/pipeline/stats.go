package pipeline

import (
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/dispatch"
	"github.com/Marabunta159/VoiceCoach/internal/stream"
	"github.com/Marabunta159/VoiceCoach/internal/transcription"
)

// Stats is a snapshot of every pipeline component
type Stats struct {
	Uptime          string               `json:"uptime"`
	Running         bool                 `json:"running"`
	Mic             stream.WorkerState   `json:"mic"`
	Loopback        stream.WorkerState   `json:"loopback"`
	Monitor         stream.DeviceState   `json:"monitor"`
	Mixer           dispatch.MixerStats  `json:"mixer"`
	Transcription   *transcription.Stats `json:"transcription,omitempty"`
	TranscriptLines int                  `json:"transcript_lines"`
	SilenceLevel    int                  `json:"silence_level"`
	SinceLastSpeech float64              `json:"seconds_since_last_speech"`
	SpeakerLevel    float64              `json:"speaker_level"`
	Selected        map[string]string    `json:"selected_devices"`
}

type statsReporter interface {
	Stats() transcription.Stats
}

// Stats collects a snapshot safe to take from any goroutine
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	running := p.running
	started := p.started
	selected := make(map[string]string, len(p.devices))
	for src, dev := range p.devices {
		selected[src.String()] = deviceName(dev)
	}
	p.mu.Unlock()

	stats := Stats{
		Running:         running,
		Mic:             p.mic.State(),
		Loopback:        p.loopback.State(),
		Monitor:         p.monitor.State(),
		Mixer:           p.mixer.Stats(),
		TranscriptLines: p.transcript.Len(),
		SilenceLevel:    p.silence.Level(),
		SinceLastSpeech: p.silence.SinceLastSpeech().Seconds(),
		SpeakerLevel:    p.meter.Level(),
		Selected:        selected,
	}
	if running {
		stats.Uptime = time.Since(started).Round(time.Second).String()
	}
	if r, ok := p.transcriber.(statsReporter); ok {
		ts := r.Stats()
		stats.Transcription = &ts
	}
	return stats
}

func deviceName(dev *capture.Device) string {
	if dev == nil {
		return "none"
	}
	return dev.String()
}
