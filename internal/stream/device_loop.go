package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
)

const (
	// DefaultIdlePoll is how long a device-less loop sleeps between checks
	DefaultIdlePoll = 50 * time.Millisecond
	// DefaultReadTimeout bounds one ReadFrame so device requests are noticed
	// on streams that stop delivering, such as idle loopback devices.
	DefaultReadTimeout = 100 * time.Millisecond
)

// deviceRequest asks a loop to switch to device, or to none when nil
type deviceRequest struct {
	device *capture.Device
}

// deviceLoop owns one capture stream on one goroutine. Device changes are
// posted to a single-slot channel where the latest request replaces any
// pending one; the loop applies them between frames.
type deviceLoop struct {
	name        string
	source      capture.Source
	logger      *slog.Logger
	metrics     *metrics.Metrics
	idlePoll    time.Duration
	readTimeout time.Duration

	requests chan deviceRequest

	// Owned by the loop goroutine.
	stream capture.Stream

	attached   atomic.Bool
	deviceName atomic.Value // string
	framesRead atomic.Uint64
	swaps      atomic.Uint64
	errors     atomic.Uint64
}

func newDeviceLoop(name string, source capture.Source, idlePoll, readTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *deviceLoop {
	if idlePoll <= 0 {
		idlePoll = DefaultIdlePoll
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &deviceLoop{
		name:        name,
		source:      source,
		logger:      logger.With(slog.String("worker", name)),
		metrics:     m,
		idlePoll:    idlePoll,
		readTimeout: readTimeout,
		requests:    make(chan deviceRequest, 1),
	}
	l.deviceName.Store("")
	return l
}

// request posts a device change. Safe from any goroutine; never blocks.
func (l *deviceLoop) request(dev *capture.Device) {
	req := deviceRequest{device: dev}
	for {
		select {
		case l.requests <- req:
			return
		default:
		}
		// Replace the stale pending request.
		select {
		case <-l.requests:
		default:
		}
	}
}

// run reads frames until ctx is done. onFrame receives every frame;
// onChange is called on the loop goroutine after each applied request.
func (l *deviceLoop) run(ctx context.Context, onFrame func(audio.Frame), onChange func(dev *capture.Device)) {
	defer l.closeStream()

	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case req := <-l.requests:
			l.apply(ctx, req, onChange)
		default:
		}

		if l.stream == nil {
			if !l.idle(ctx, onChange) {
				return
			}
			continue
		}

		frame, err := l.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			l.fail(err)
			continue
		}

		l.framesRead.Add(1)
		l.metrics.RecordFrameRead(l.name)
		onFrame(frame)
	}
}

func (l *deviceLoop) read(ctx context.Context) (audio.Frame, error) {
	readCtx, cancel := context.WithTimeout(ctx, l.readTimeout)
	defer cancel()
	return l.stream.ReadFrame(readCtx)
}

// idle waits one poll interval without a device. It returns false when
// ctx is done.
func (l *deviceLoop) idle(ctx context.Context, onChange func(dev *capture.Device)) bool {
	timer := time.NewTimer(l.idlePoll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case req := <-l.requests:
		l.apply(ctx, req, onChange)
	case <-timer.C:
	}
	return true
}

// apply releases the current stream before opening the requested one.
func (l *deviceLoop) apply(ctx context.Context, req deviceRequest, onChange func(dev *capture.Device)) {
	l.closeStream()
	l.swaps.Add(1)
	l.metrics.RecordDeviceSwap(l.name)

	if req.device == nil {
		l.logger.Info("Device cleared")
		if onChange != nil {
			onChange(nil)
		}
		return
	}

	dev := *req.device
	stream, err := l.source.Open(ctx, dev)
	if err != nil {
		l.errors.Add(1)
		l.metrics.RecordDeviceError(l.name, "open")
		l.logger.Error("Failed to open device",
			slog.String("device", dev.String()),
			slog.String("error", err.Error()),
		)
		if onChange != nil {
			onChange(nil)
		}
		return
	}

	l.stream = stream
	l.attached.Store(true)
	l.deviceName.Store(dev.String())
	l.metrics.SetDeviceAttached(l.name, true)
	l.logger.Info("Device attached", slog.String("device", dev.String()))

	if onChange != nil {
		onChange(&dev)
	}
}

// fail drops the stream after a read error; the loop goes device-less
// until the next request.
func (l *deviceLoop) fail(err error) {
	if errors.Is(err, io.EOF) {
		l.logger.Info("Device stream ended", slog.String("device", l.deviceName.Load().(string)))
	} else {
		l.errors.Add(1)
		l.metrics.RecordDeviceError(l.name, "read")
		l.logger.Error("Device read failed",
			slog.String("device", l.deviceName.Load().(string)),
			slog.String("error", err.Error()),
		)
	}
	l.closeStream()
}

func (l *deviceLoop) closeStream() {
	if l.stream == nil {
		return
	}
	if err := l.stream.Close(); err != nil {
		l.logger.Warn("Failed to close device stream",
			slog.String("device", l.deviceName.Load().(string)),
			slog.String("error", err.Error()),
		)
	}
	l.stream = nil
	l.attached.Store(false)
	l.deviceName.Store("")
	l.metrics.SetDeviceAttached(l.name, false)
}

// DeviceState is a snapshot of a capture loop
type DeviceState struct {
	Name       string `json:"name"`
	Device     string `json:"device"`
	Attached   bool   `json:"attached"`
	FramesRead uint64 `json:"frames_read"`
	Swaps      uint64 `json:"swaps"`
	Errors     uint64 `json:"errors"`
}

func (l *deviceLoop) state() DeviceState {
	return DeviceState{
		Name:       l.name,
		Device:     l.deviceName.Load().(string),
		Attached:   l.attached.Load(),
		FramesRead: l.framesRead.Load(),
		Swaps:      l.swaps.Load(),
		Errors:     l.errors.Load(),
	}
}
