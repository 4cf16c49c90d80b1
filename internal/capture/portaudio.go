package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

// PortAudioSource captures microphones through PortAudio. The library is
// initialized on first use and terminated when the last stream closes.
type PortAudioSource struct {
	logger       *slog.Logger
	bufferFrames int

	mu   sync.Mutex
	refs int
}

// NewPortAudioSource creates a microphone source. bufferFrames bounds how
// many frames may wait for the reader before new ones are dropped.
func NewPortAudioSource(logger *slog.Logger, bufferFrames int) *PortAudioSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSource{logger: logger, bufferFrames: bufferFrames}
}

func (s *PortAudioSource) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
	}
	s.refs++
	return nil
}

func (s *PortAudioSource) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return nil
	}
	s.refs--
	if s.refs == 0 {
		if err := portaudio.Terminate(); err != nil {
			return fmt.Errorf("failed to terminate PortAudio: %w", err)
		}
	}
	return nil
}

// Devices lists input-capable devices. IDs are PortAudio device indexes.
func (s *PortAudioSource) Devices() ([]Device, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		defaultInput = nil
	}

	var result []Device
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:         strconv.Itoa(i),
			Name:       info.Name,
			Kind:       KindInput,
			Channels:   min(info.MaxInputChannels, 2),
			SampleRate: int(info.DefaultSampleRate),
			IsDefault:  defaultInput != nil && info.Name == defaultInput.Name,
		})
	}
	return result, nil
}

// Open starts a callback stream on the device at its native rate; the
// callback downmixes and resamples into 16 kHz frames.
func (s *PortAudioSource) Open(ctx context.Context, dev Device) (Stream, error) {
	if dev.Kind != "" && dev.Kind != KindInput {
		return nil, fmt.Errorf("device %q is not an input device", dev)
	}

	index, err := strconv.Atoi(dev.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid PortAudio device id %q: %w", dev.ID, err)
	}

	if err := s.acquire(); err != nil {
		return nil, err
	}

	infos, err := portaudio.Devices()
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if index < 0 || index >= len(infos) {
		s.release()
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, index)
	}

	info := infos[index]
	if info.MaxInputChannels <= 0 {
		s.release()
		return nil, fmt.Errorf("device %q has no input channels", info.Name)
	}

	channels := dev.Channels
	if channels <= 0 || channels > info.MaxInputChannels {
		channels = min(info.MaxInputChannels, 2)
	}
	rate := dev.SampleRate
	if rate <= 0 {
		rate = int(info.DefaultSampleRate)
	}

	var (
		pa *portaudio.Stream
		fs *framedStream
	)
	fs = newFramedStream(channels, rate, s.bufferFrames, func() error {
		var firstErr error
		if err := pa.Stop(); err != nil {
			firstErr = fmt.Errorf("failed to stop stream: %w", err)
		}
		if err := pa.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close stream: %w", err)
		}
		if err := s.release(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	})

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: rate * int(audio.FrameDuration.Milliseconds()) / 1000,
	}

	pa, err = portaudio.OpenStream(params, func(in []float32) {
		fs.deliver(in)
	})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to open stream on %q: %w", info.Name, err)
	}

	if err := pa.Start(); err != nil {
		pa.Close()
		s.release()
		return nil, fmt.Errorf("failed to start stream on %q: %w", info.Name, err)
	}

	s.logger.Info("Microphone stream opened",
		slog.String("device", info.Name),
		slog.Int("channels", channels),
		slog.Int("sample_rate", rate),
	)
	return fs, nil
}
