package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

// FrameObserver consumes frames with their arrival time
type FrameObserver interface {
	Observe(frame audio.Frame, now time.Time)
	Reset()
}

// MonitorWorker runs its own capture stream on the microphone and feeds
// every frame to an observer. Detaching the device resets the observer.
type MonitorWorker struct {
	loop     *deviceLoop
	observer FrameObserver
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitorWorker creates a monitor capture loop
func NewMonitorWorker(capSource capture.Source, observer FrameObserver, idlePoll, readTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *MonitorWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorWorker{
		loop:     newDeviceLoop("monitor", capSource, idlePoll, readTimeout, logger, m),
		observer: observer,
		now:      time.Now,
		logger:   logger.With(slog.String("worker", "monitor")),
	}
}

// Start launches the capture goroutine
func (w *MonitorWorker) Start(ctx context.Context) {
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
}

// Stop cancels the capture goroutine and waits for it
func (w *MonitorWorker) Stop() {
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
}

// RequestDevice asks the worker to switch device; nil detaches it.
func (w *MonitorWorker) RequestDevice(dev *capture.Device) {
	w.loop.request(dev)
}

func (w *MonitorWorker) handleFrame(frame audio.Frame) {
	w.observer.Observe(frame, w.now())
}

func (w *MonitorWorker) handleChange(dev *capture.Device) {
	if dev == nil {
		w.observer.Reset()
	}
}

// State returns a snapshot of the capture loop
func (w *MonitorWorker) State() DeviceState {
	return w.loop.state()
}
