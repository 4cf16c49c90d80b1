package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Marabunta159/VoiceCoach/internal/alert"
	"github.com/Marabunta159/VoiceCoach/internal/audio"
	"github.com/Marabunta159/VoiceCoach/internal/capture"
	"github.com/Marabunta159/VoiceCoach/internal/config"
	"github.com/Marabunta159/VoiceCoach/internal/metrics"
	"github.com/Marabunta159/VoiceCoach/internal/pipeline"
	"github.com/Marabunta159/VoiceCoach/internal/server"
	"github.com/Marabunta159/VoiceCoach/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voicecoach"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "Print capture devices and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	sources := buildSources(cfg, logger)

	if *listDevices {
		if err := printDevices(sources); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("mic_threshold", cfg.VAD.MicThreshold),
		slog.Float64("loopback_threshold", cfg.VAD.LoopbackThreshold()),
		slog.Int("silence_ms", cfg.VAD.SilenceMs),
		slog.Float64("max_chunk_seconds", cfg.VAD.MaxChunkSeconds),
		slog.Any("silence_levels_seconds", cfg.Silence.LevelsSeconds),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	backend, err := transcription.NewBackend(transcriptionConfig(cfg), logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	p := pipeline.New(cfg, logger, sources, backend, buildCue(cfg.Silence), appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, sources, appMetrics, prometheus.DefaultGatherer)
	}

	p.Start(ctx)

	selectDevice(p, logger, audio.SourceMic, sources.Mic, cfg.Devices.Mic, cfg.Devices.ReplayMic)
	selectDevice(p, logger, audio.SourceLoopback, sources.Loopback, cfg.Devices.Loopback, cfg.Devices.ReplayLoopback)

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("Service started successfully, waiting for signals...")

	<-ctx.Done()
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	p.Stop()

	if err := backend.Close(); err != nil {
		logger.Error("Error closing transcription backend", slog.String("error", err.Error()))
	}

	stats := p.Stats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("mic_frames", stats.Mic.FramesRead),
		slog.Uint64("loopback_frames", stats.Loopback.FramesRead),
		slog.Uint64("mic_segments", stats.Mic.Accumulator.SegmentsEmitted),
		slog.Uint64("loopback_segments", stats.Loopback.Accumulator.SegmentsEmitted),
		slog.Uint64("gate_rejected", stats.Mixer.GateRejected),
		slog.Int("transcript_lines", stats.TranscriptLines),
	)

	logger.Info("Service stopped")
}

// buildSources wires PortAudio for the microphone and miniaudio loopback for
// the speakers, with WAV replay routed in when configured.
func buildSources(cfg *config.Config, logger *slog.Logger) pipeline.Sources {
	var mic capture.Source = capture.NewPortAudioSource(logger, cfg.Audio.BufferFrames)
	var loopback capture.Source = capture.NewMalgoLoopbackSource(logger, cfg.Audio.BufferFrames)

	if cfg.Devices.ReplayMic != "" {
		mic = &capture.Router{
			Default: mic,
			Sources: map[capture.Kind]capture.Source{
				capture.KindFile: &capture.FileSource{Paths: []string{cfg.Devices.ReplayMic}, Realtime: cfg.Devices.Realtime},
			},
		}
	}
	if cfg.Devices.ReplayLoopback != "" {
		loopback = &capture.Router{
			Default: loopback,
			Sources: map[capture.Kind]capture.Source{
				capture.KindFile: &capture.FileSource{Paths: []string{cfg.Devices.ReplayLoopback}, Realtime: cfg.Devices.Realtime},
			},
		}
	}

	return pipeline.Sources{Mic: mic, Loopback: loopback}
}

// selectDevice applies the startup device for one stream
func selectDevice(p *pipeline.Pipeline, logger *slog.Logger, source audio.Source, capSource capture.Source, query, replay string) {
	if replay != "" {
		dev := capture.Device{ID: replay, Name: replay, Kind: capture.KindFile}
		p.RequestDeviceChange(source, &dev)
		return
	}

	if query == config.DeviceNone {
		p.RequestDeviceChange(source, nil)
		return
	}

	dev, err := capture.Lookup(capSource, query)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, capture.ErrNoDevice) {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "No startup device",
			slog.String("source", source.String()),
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		p.RequestDeviceChange(source, nil)
		return
	}
	p.RequestDeviceChange(source, &dev)
}

func printDevices(sources pipeline.Sources) error {
	for _, entry := range []struct {
		name string
		src  capture.Source
	}{
		{"Microphones", sources.Mic},
		{"Loopback", sources.Loopback},
	} {
		devices, err := entry.src.Devices()
		if err != nil {
			return fmt.Errorf("%s: %w", entry.name, err)
		}
		fmt.Printf("%s:\n", entry.name)
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("  %s [%s] %s (%d ch, %d Hz)\n", marker, d.ID, d.Name, d.Channels, d.SampleRate)
		}
	}
	return nil
}

func transcriptionConfig(cfg *config.Config) transcription.Config {
	t := cfg.Transcription
	return transcription.Config{
		Provider:      t.Provider,
		Endpoint:      t.Endpoint,
		APIKey:        t.APIKey,
		Timeout:       t.GetTimeoutDuration(),
		MaxRetries:    t.MaxRetries,
		MaxConcurrent: t.MaxConcurrent,
		RetryBackoff:  t.GetRetryBackoffDuration(),
		SampleRate:    cfg.Audio.SampleRate,
		Options: transcription.Options{
			Language:    t.Language,
			Model:       t.Model,
			Prompt:      t.Prompt,
			Temperature: t.Temperature,
			BeamSize:    t.BeamSize,
		},
	}
}

// buildCue returns the alert cue selected by cfg.Cue, or nil for none
func buildCue(cfg config.SilenceConfig) alert.Cue {
	ping := alert.PingConfig{
		BaseHz:     cfg.PingBaseHz,
		StepHz:     cfg.PingStepHz,
		Duration:   cfg.GetPingDuration(),
		Gap:        cfg.GetPingGapDuration(),
		Volume:     cfg.PingVolume,
		SampleRate: alert.DefaultPingConfig().SampleRate,
	}

	switch cfg.Cue {
	case "beep":
		return alert.NewBeepCue(ping)
	case "notify":
		return alert.NewNotifyCue("")
	case "both":
		return alert.Cues{alert.NewBeepCue(ping), alert.NewNotifyCue("")}
	default:
		return nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
