package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

const (
	defaultLoopbackChannels = 2
	defaultLoopbackRate     = 48000
)

// MalgoLoopbackSource captures what a playback device is rendering using
// miniaudio's loopback mode. The miniaudio context is shared by all streams
// and released with the last one.
type MalgoLoopbackSource struct {
	logger       *slog.Logger
	bufferFrames int

	mu   sync.Mutex
	ctx  *malgo.AllocatedContext
	refs int
}

// NewMalgoLoopbackSource creates a loopback source
func NewMalgoLoopbackSource(logger *slog.Logger, bufferFrames int) *MalgoLoopbackSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoLoopbackSource{logger: logger, bufferFrames: bufferFrames}
}

func (s *MalgoLoopbackSource) acquire() (*malgo.AllocatedContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
			s.logger.Debug("miniaudio", slog.String("message", msg))
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
		}
		s.ctx = ctx
	}
	s.refs++
	return s.ctx, nil
}

func (s *MalgoLoopbackSource) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return nil
	}
	s.refs--
	if s.refs > 0 || s.ctx == nil {
		return nil
	}

	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	if err != nil {
		return fmt.Errorf("failed to release miniaudio context: %w", err)
	}
	return nil
}

func loopbackDevice(info malgo.DeviceInfo) Device {
	dev := Device{
		ID:         info.ID.String(),
		Name:       info.Name(),
		Kind:       KindLoopback,
		Channels:   defaultLoopbackChannels,
		SampleRate: defaultLoopbackRate,
		IsDefault:  info.IsDefault != 0,
	}
	if info.FormatCount > 0 {
		f := info.Formats[0]
		if f.Channels > 0 {
			dev.Channels = int(f.Channels)
		}
		if f.SampleRate > 0 {
			dev.SampleRate = int(f.SampleRate)
		}
	}
	return dev
}

// Devices lists playback devices that can be captured in loopback
func (s *MalgoLoopbackSource) Devices() ([]Device, error) {
	ctx, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	result := make([]Device, 0, len(infos))
	for _, info := range infos {
		result = append(result, loopbackDevice(info))
	}
	return result, nil
}

// Open captures the playback device at its native rate and channel count.
func (s *MalgoLoopbackSource) Open(ctx context.Context, dev Device) (Stream, error) {
	if dev.Kind != "" && dev.Kind != KindLoopback {
		return nil, fmt.Errorf("device %q is not a loopback device", dev)
	}

	mctx, err := s.acquire()
	if err != nil {
		return nil, err
	}

	infos, err := mctx.Devices(malgo.Playback)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	var target *malgo.DeviceInfo
	for i := range infos {
		if infos[i].ID.String() == dev.ID {
			target = &infos[i]
			break
		}
	}
	if target == nil {
		s.release()
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, dev.ID)
	}

	resolved := loopbackDevice(*target)
	channels, rate := resolved.Channels, resolved.SampleRate
	if dev.Channels > 0 {
		channels = dev.Channels
	}
	if dev.SampleRate > 0 {
		rate = dev.SampleRate
	}

	id := target.ID
	cfg := malgo.DefaultDeviceConfig(malgo.Loopback)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	// In loopback mode the capture side names the playback device.
	cfg.Capture.DeviceID = id.Pointer()
	cfg.SampleRate = uint32(rate)
	cfg.Alsa.NoMMap = 1

	var (
		device *malgo.Device
		fs     *framedStream
	)
	fs = newFramedStream(channels, rate, s.bufferFrames, func() error {
		device.Uninit()
		return s.release()
	})

	onData := func(_, in []byte, frameCount uint32) {
		n := int(frameCount) * channels
		if n == 0 || len(in) < n*4 {
			return
		}
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
		}
		fs.deliver(samples)
	}

	device, err = malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: onData,
		Stop: fs.finish,
	})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to init loopback device %q: %w", resolved.Name, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		s.release()
		return nil, fmt.Errorf("failed to start loopback device %q: %w", resolved.Name, err)
	}

	s.logger.Info("Loopback stream opened",
		slog.String("device", resolved.Name),
		slog.Int("channels", channels),
		slog.Int("sample_rate", rate),
	)
	return fs, nil
}
