package alert

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

const (
	DefaultPlayerWorkers = 1
	DefaultPlayerQueue   = 4
)

// Player plays cues on a fixed pool of goroutines. Trigger never blocks;
// requests beyond the queue capacity are dropped.
type Player struct {
	cue     Cue
	workers int
	queue   chan int
	done    chan struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewPlayer creates a player for cue
func NewPlayer(cue Cue, workers, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Player {
	if workers < 1 {
		workers = DefaultPlayerWorkers
	}
	if queueSize < 1 {
		queueSize = DefaultPlayerQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		cue:     cue,
		workers: workers,
		queue:   make(chan int, queueSize),
		done:    make(chan struct{}),
		logger:  logger.With(slog.String("component", "alert_player")),
		metrics: m,
	}
}

// Start launches the worker pool
func (p *Player) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run()
		}
	})
}

func (p *Player) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case level := <-p.queue:
			p.play(level)
		}
	}
}

func (p *Player) play(level int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Cue panicked", slog.Int("level", level), slog.Any("panic", r))
		}
	}()

	if err := p.cue.Play(level); err != nil {
		p.logger.Warn("Cue failed", slog.Int("level", level), slog.String("error", err.Error()))
		return
	}
	p.metrics.RecordCuePlayed(strconv.Itoa(level))
}

// Trigger queues a cue for level and reports whether it was accepted
func (p *Player) Trigger(level int) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.queue <- level:
		return true
	default:
		p.metrics.RecordCueDropped()
		return false
	}
}

// Stop ends the pool after the cues currently playing finish. Queued cues
// are discarded.
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}
