package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Marabunta159/VoiceCoach/internal/audio"
)

var (
	// ErrNoDevice is returned when a source has no devices at all
	ErrNoDevice = errors.New("no capture device available")
	// ErrDeviceNotFound is returned when no device matches a lookup
	ErrDeviceNotFound = errors.New("device not found")
	// ErrStreamClosed is returned by ReadFrame after Close
	ErrStreamClosed = errors.New("stream closed")
)

// Kind tells which backend a device belongs to
type Kind string

const (
	KindInput    Kind = "input"
	KindLoopback Kind = "loopback"
	KindFile     Kind = "file"
)

// Device identifies one capture endpoint
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	IsDefault  bool   `json:"is_default"`
}

func (d Device) String() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// Stream delivers frames from one opened device. ReadFrame returns io.EOF
// when the device has no more input.
type Stream interface {
	ReadFrame(ctx context.Context) (audio.Frame, error)
	Close() error
}

// Source opens streams on the devices it enumerates
type Source interface {
	Devices() ([]Device, error)
	Open(ctx context.Context, dev Device) (Stream, error)
}

// FindDevice looks a device up by exact ID, then exact name, then name
// substring, all case-insensitive. An empty query selects the default
// device, or the first one when none is marked.
func FindDevice(devices []Device, query string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}

	if query == "" {
		for _, d := range devices {
			if d.IsDefault {
				return d, nil
			}
		}
		return devices[0], nil
	}

	q := strings.ToLower(query)
	for _, d := range devices {
		if strings.ToLower(d.ID) == q {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.ToLower(d.Name) == q {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), q) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, query)
}

// Lookup enumerates the source and resolves query with FindDevice.
func Lookup(src Source, query string) (Device, error) {
	devices, err := src.Devices()
	if err != nil {
		return Device{}, fmt.Errorf("failed to list devices: %w", err)
	}
	return FindDevice(devices, query)
}
