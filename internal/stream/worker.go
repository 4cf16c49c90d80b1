package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
	"github.com/Marabunta159/VoiceCoach/internal/vad"
)

// FrameTap observes every frame a worker reads, on the worker goroutine
type FrameTap func(frame audio.Frame)

// WorkerConfig holds the settings of one capture worker
type WorkerConfig struct {
	Source      audio.Source
	Accumulator vad.AccumulatorConfig
	IdlePoll    time.Duration
	ReadTimeout time.Duration
}

// Worker captures one audio source and feeds its segments to a queue.
type Worker struct {
	source  audio.Source
	loop    *deviceLoop
	acc     *vad.Accumulator
	queue   *Queue
	logger  *slog.Logger
	metrics *metrics.Metrics
	taps    []FrameTap

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker creates a worker for config.Source reading from capSource.
func NewWorker(config WorkerConfig, capSource capture.Source, classifier *vad.Classifier, queue *Queue, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	name := config.Source.String()

	w := &Worker{
		source:  config.Source,
		loop:    newDeviceLoop(name, capSource, config.IdlePoll, config.ReadTimeout, logger, m),
		queue:   queue,
		logger:  logger.With(slog.String("worker", name)),
		metrics: m,
	}
	w.acc = vad.NewAccumulator(config.Source, config.Accumulator, classifier, w.offer, w.logger)
	return w
}

// AddFrameTap registers a tap. Call before Start.
func (w *Worker) AddFrameTap(tap FrameTap) {
	w.taps = append(w.taps, tap)
}

// Start launches the capture goroutine
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop.run(ctx, w.handleFrame, w.handleChange)
	}()

	w.logger.Info("Capture worker started")
}

// Stop cancels the capture goroutine and waits until its stream is closed
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("Capture worker stopped")
}

// RequestDevice asks the worker to switch device; nil detaches it. The
// latest request wins when several arrive before the worker applies them.
func (w *Worker) RequestDevice(dev *capture.Device) {
	w.loop.request(dev)
}

func (w *Worker) handleFrame(frame audio.Frame) {
	discarded := w.acc.Stats().Discarded
	speech := w.acc.Push(frame)
	w.metrics.RecordFrameClassified(w.source.String(), speech)
	if w.acc.Stats().Discarded != discarded {
		w.metrics.RecordSegmentDiscarded(w.source.String())
	}

	for _, tap := range w.taps {
		tap(frame)
	}
}

// handleChange drops any utterance from the previous device.
func (w *Worker) handleChange(*capture.Device) {
	w.acc.Reset()
}

func (w *Worker) offer(seg audio.Segment) {
	w.metrics.RecordSegmentEmitted(w.source.String(), seg.Duration().Seconds())
	if !w.queue.Offer(seg) {
		w.metrics.RecordSegmentDropped(w.source.String())
		w.logger.Warn("Segment queue full, dropping segment",
			slog.String("segment_id", seg.ID),
			slog.Int("frames", seg.Frames),
		)
	}
}

// WorkerState is a snapshot of a worker
type WorkerState struct {
	DeviceState
	Accumulator vad.AccumulatorStats `json:"accumulator"`
	Queue       QueueStats           `json:"queue"`
}

// State returns a snapshot safe to take from any goroutine
func (w *Worker) State() WorkerState {
	return WorkerState{
		DeviceState: w.loop.state(),
		Accumulator: w.acc.Stats(),
		Queue:       w.queue.Stats(),
	}
}

// Source returns the stream tag of the worker
func (w *Worker) Source() audio.Source {
	return w.source
}

// Classifier returns the classifier used by the worker's accumulator
func (w *Worker) Classifier() *vad.Classifier {
	return w.acc.Classifier()
}
