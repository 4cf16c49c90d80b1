package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/alert"
	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/config"
	"github.com/Marabunta159/VoiceCoach/internal/dispatch"
	"github.com/Marabunta159/VoiceCoach/internal/events"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
	"github.com/Marabunta159/VoiceCoach/internal/monitor"
	"github.com/Marabunta159/VoiceCoach/internal/stream"
	"github.com/Marabunta159/VoiceCoach/internal/transcription"
	"github.com/Marabunta159/VoiceCoach/internal/vad"
)

// Sources are the capture backends of the two streams. The silence monitor
// opens its own stream on the Mic source.
type Sources struct {
	Mic      capture.Source
	Loopback capture.Source
}

// Pipeline owns every worker of the service and is the surface the
// HTTP API and the binary talk to.
type Pipeline struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	micQueue      *stream.Queue
	loopbackQueue *stream.Queue
	mic           *stream.Worker
	loopback      *stream.Worker
	mixer         *dispatch.Mixer
	transcript    *dispatch.Transcript
	transcriber   transcription.Transcriber

	silence *monitor.SilenceMonitor
	monitor *stream.MonitorWorker
	meter   *monitor.LevelMeter
	player  *alert.Player
	tick    time.Duration

	lastTick float64 // meter goroutine only

	segments *events.Bus[events.Segment]
	silences *events.Bus[events.Silence]
	levels   *events.Bus[events.Level]

	mu      sync.Mutex
	devices map[audio.Source]*capture.Device
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	started time.Time
}

// New builds a pipeline from cfg. cue may be nil to run without alerts.
func New(cfg *config.Config, logger *slog.Logger, sources Sources, transcriber transcription.Transcriber, cue alert.Cue, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		logger:        logger.With(slog.String("component", "pipeline")),
		metrics:       m,
		micQueue:      stream.NewQueue(cfg.Mixer.QueueSize),
		loopbackQueue: stream.NewQueue(cfg.Mixer.QueueSize),
		transcript:    dispatch.NewTranscript(cfg.Mixer.TranscriptLines),
		transcriber:   transcriber,
		tick:          cfg.Meter.GetTickDuration(),
		segments:      events.NewBus[events.Segment]("segment", logger),
		silences:      events.NewBus[events.Silence]("silence", logger),
		levels:        events.NewBus[events.Level]("level", logger),
		devices:       make(map[audio.Source]*capture.Device),
	}

	acc := vad.ConfigFromDurations(cfg.Audio.GetFrameDuration(),
		cfg.VAD.GetSilenceDuration(), cfg.VAD.GetMinSpeechDuration(),
		cfg.VAD.GetMaxChunkDuration(), cfg.VAD.PrerollFrames)
	idle := cfg.Audio.GetIdlePollDuration()
	readTimeout := cfg.Audio.GetReadTimeoutDuration()

	p.mic = stream.NewWorker(stream.WorkerConfig{
		Source:      audio.SourceMic,
		Accumulator: acc,
		IdlePoll:    idle,
		ReadTimeout: readTimeout,
	}, sources.Mic, vad.NewClassifier(cfg.VAD.MicThreshold), p.micQueue, logger, m)

	p.loopback = stream.NewWorker(stream.WorkerConfig{
		Source:      audio.SourceLoopback,
		Accumulator: acc,
		IdlePoll:    idle,
		ReadTimeout: readTimeout,
	}, sources.Loopback, vad.NewClassifier(cfg.VAD.LoopbackThreshold()), p.loopbackQueue, logger, m)

	p.meter = monitor.NewLevelMeter(monitor.MeterConfig{
		Window:      cfg.Meter.GetWindowDuration(),
		DecayFactor: cfg.Meter.DecayFactor,
		Grace:       cfg.Meter.GetGraceDuration(),
		Snap:        cfg.Meter.Snap,
	})
	p.loopback.AddFrameTap(func(frame audio.Frame) {
		p.meter.Push(frame, audio.SampleRate)
	})

	p.mixer = dispatch.NewMixer(dispatch.MixerConfig{
		PollTimeout: cfg.Mixer.GetPollTimeoutDuration(),
		Gate:        dispatch.Gate{MinRMS: cfg.Mixer.GateMinRMS, MinPeak: cfg.Mixer.GateMinPeak},
	}, p.micQueue, p.loopbackQueue, transcriber, p.transcript, p.segments.Publish, logger, m)

	var alerter monitor.Alerter
	if cue != nil {
		p.player = alert.NewPlayer(cue, cfg.Silence.PlayerWorkers, cfg.Silence.PlayerQueue, logger, m)
		alerter = p.player
	}
	p.silence = monitor.NewSilenceMonitor(monitor.SilenceConfig{
		Levels:         cfg.Silence.GetLevelDurations(),
		SpeakThreshold: cfg.Silence.SpeakThreshold,
	}, alerter, p.silences.Publish, logger, m)
	p.monitor = stream.NewMonitorWorker(sources.Mic, p.silence, idle, readTimeout, logger, m)

	return p
}

// RegisterSegmentObserver calls fn for every transcribed line
func (p *Pipeline) RegisterSegmentObserver(fn func(text string, source audio.Source)) (unsubscribe func()) {
	return p.segments.Subscribe(func(s events.Segment) { fn(s.Text, s.Source) })
}

// RegisterSilenceObserver calls fn on every silence level change
func (p *Pipeline) RegisterSilenceObserver(fn func(level int, elapsedSeconds float64)) (unsubscribe func()) {
	return p.silences.Subscribe(func(s events.Silence) { fn(s.Level, s.ElapsedSeconds) })
}

// RegisterLevelObserver calls fn on each meter tick while the speaker level
// is nonzero, and once more when it reaches zero.
func (p *Pipeline) RegisterLevelObserver(fn func(level float64)) (unsubscribe func()) {
	return p.levels.Subscribe(func(l events.Level) { fn(l.Value) })
}

// Segments exposes the segment bus for consumers that want the full event
func (p *Pipeline) Segments() *events.Bus[events.Segment] {
	return p.segments
}

// Silences exposes the silence bus
func (p *Pipeline) Silences() *events.Bus[events.Silence] {
	return p.silences
}

// Levels exposes the level bus
func (p *Pipeline) Levels() *events.Bus[events.Level] {
	return p.levels
}

// RequestDeviceChange switches the device of one stream; nil detaches it.
// The microphone selection also drives the silence monitor. Detaching the
// loopback drops the speaker meter to zero.
func (p *Pipeline) RequestDeviceChange(source audio.Source, dev *capture.Device) error {
	var selected *capture.Device
	if dev != nil {
		d := *dev
		selected = &d
	}

	switch source {
	case audio.SourceMic:
		p.mic.RequestDevice(selected)
		p.monitor.RequestDevice(selected)
	case audio.SourceLoopback:
		p.loopback.RequestDevice(selected)
		if selected == nil {
			p.meter.Reset()
		}
	default:
		return fmt.Errorf("cannot select a device for source %q", source)
	}

	p.mu.Lock()
	p.devices[source] = selected
	p.mu.Unlock()

	p.logger.Info("Device change requested",
		slog.String("source", source.String()),
		slog.String("device", deviceName(selected)),
	)
	return nil
}

// LastNLines returns the newest n transcript lines, oldest first
func (p *Pipeline) LastNLines(n int) []string {
	return p.transcript.LastN(n)
}

// LastLines returns the newest n transcript lines with their metadata
func (p *Pipeline) LastLines(n int) []dispatch.Line {
	return p.transcript.LastLines(n)
}

// ClearBuffer empties the transcript
func (p *Pipeline) ClearBuffer() {
	p.transcript.Clear()
	p.metrics.SetTranscriptLines(0)
}

// SetThresholds updates both VAD thresholds. Values take effect from the
// next frame; they are not range-checked here.
func (p *Pipeline) SetThresholds(mic, loopback float64) {
	p.mic.Classifier().SetThreshold(mic)
	p.loopback.Classifier().SetThreshold(loopback)
	p.logger.Info("VAD thresholds updated",
		slog.Float64("mic", mic),
		slog.Float64("loopback", loopback),
	)
}

// Thresholds returns the current mic and loopback VAD thresholds
func (p *Pipeline) Thresholds() (mic, loopback float64) {
	return p.mic.Classifier().Threshold(), p.loopback.Classifier().Threshold()
}

// SilenceLevel returns the current silence escalation level
func (p *Pipeline) SilenceLevel() int {
	return p.silence.Level()
}

// SpeakerLevel returns the held speaker meter level
func (p *Pipeline) SpeakerLevel() float64 {
	return p.meter.Level()
}

// Start launches every worker
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.started = time.Now()

	if p.player != nil {
		p.player.Start()
	}
	p.mixer.Start(ctx)
	p.monitor.Start(ctx)
	p.mic.Start(ctx)
	p.loopback.Start(ctx)

	p.wg.Add(1)
	go p.runMeter(ctx)

	p.logger.Info("Pipeline started")
}

// Stop halts capture first, then the dispatcher, the meter and the alert
// player. An in-flight transcription completes before Stop returns.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	p.mic.Stop()
	p.loopback.Stop()
	p.monitor.Stop()
	p.mixer.Stop()
	cancel()
	p.wg.Wait()
	if p.player != nil {
		p.player.Stop()
	}

	p.logger.Info("Pipeline stopped")
}

func (p *Pipeline) runMeter(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.meterTick()
		}
	}
}

// meterTick decays the meter and publishes the level while it is nonzero
// and on the transition to zero.
func (p *Pipeline) meterTick() {
	level := p.meter.Decay()
	if level == 0 && p.lastTick == 0 {
		return
	}
	p.lastTick = level
	p.metrics.SetSpeakerLevel(level)
	p.levels.Publish(events.Level{Value: level})
}
