package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

func writeWAV(t *testing.T, samples []float32, rate int) string {
	t.Helper()
	data, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestFileSourceReplay(t *testing.T) {
	// 10 full frames plus a tail long enough to be kept.
	n := audio.FrameSamples*10 + audio.FrameSamples/2
	path := writeWAV(t, make([]float32, n), audio.SampleRate)

	src := &FileSource{Paths: []string{path}}
	devices, err := src.Devices()
	if err != nil || len(devices) != 1 {
		t.Fatalf("Expected 1 device, got %d (%v)", len(devices), err)
	}

	stream, err := src.Open(context.Background(), devices[0])
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	count := 0
	for {
		_, err := stream.ReadFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		count++
	}
	if count != 11 {
		t.Errorf("Expected 11 frames, got %d", count)
	}
}

func TestFileSourceResamples(t *testing.T) {
	// One second at 8 kHz is one second of 16 kHz frames.
	path := writeWAV(t, make([]float32, 8000), 8000)

	stream, err := (&FileSource{}).Open(context.Background(), Device{ID: path, Kind: KindFile})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	count := 0
	for {
		if _, err := stream.ReadFrame(context.Background()); err != nil {
			break
		}
		count++
	}
	want := audio.SampleRate / audio.FrameSamples
	if count < want || count > want+1 {
		t.Errorf("Expected about %d frames, got %d", want, count)
	}
}

func TestFileSourceMissing(t *testing.T) {
	if _, err := (&FileSource{}).Open(context.Background(), Device{ID: "/nonexistent.wav"}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRouter(t *testing.T) {
	path := writeWAV(t, make([]float32, audio.FrameSamples), audio.SampleRate)
	r := &Router{Sources: map[Kind]Source{KindFile: &FileSource{Paths: []string{path}}}}

	if _, err := r.Open(context.Background(), Device{ID: path, Kind: KindFile}); err != nil {
		t.Errorf("Expected file device to open, got %v", err)
	}
	if _, err := r.Open(context.Background(), Device{ID: "0", Kind: KindInput}); err == nil {
		t.Error("Expected error without a default source")
	}
}
