package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	samples := make([]float32, SampleRate/10)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}

	data, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("Missing RIFF/WAVE header")
	}

	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, rate)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, SampleRate); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]float32{0}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestInspectWAV(t *testing.T) {
	data, err := EncodeWAV(make([]float32, SampleRate), SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "one_second.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	info, err := InspectWAV(path)
	if err != nil {
		t.Fatalf("InspectWAV failed: %v", err)
	}
	if info.SampleRate != SampleRate || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("Unexpected info: %+v", info)
	}
	if math.Abs(info.Duration-1.0) > 0.01 {
		t.Errorf("Expected 1s duration, got %f", info.Duration)
	}
}

func TestDecodeWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.25}
	data, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	got, channels, rate, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if channels != 1 || rate != SampleRate {
		t.Errorf("Expected mono %d Hz, got %d channels at %d Hz", SampleRate, channels, rate)
	}
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if math.Abs(float64(got[i]-samples[i])) > 1e-3 {
			t.Errorf("Sample %d: expected %f, got %f", i, samples[i], got[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Error("Expected error for invalid stream")
	}
}
