package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// BeepCue plays the ping level times through the default output device.
// The speaker is initialized on the first Play.
type BeepCue struct {
	config PingConfig

	initOnce sync.Once
	initErr  error
}

// NewBeepCue creates a speaker cue
func NewBeepCue(config PingConfig) *BeepCue {
	def := DefaultPingConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Duration <= 0 {
		config.Duration = def.Duration
	}
	if config.Volume <= 0 {
		config.Volume = def.Volume
	}
	return &BeepCue{config: config}
}

func (c *BeepCue) init() error {
	c.initOnce.Do(func() {
		rate := beep.SampleRate(c.config.SampleRate)
		if err := speaker.Init(rate, rate.N(time.Second/20)); err != nil {
			c.initErr = fmt.Errorf("failed to initialize speaker: %w", err)
		}
	})
	return c.initErr
}

// Play blocks until the whole sequence has been rendered.
func (c *BeepCue) Play(level int) error {
	if level < 1 {
		return nil
	}
	if err := c.init(); err != nil {
		return err
	}

	rate := beep.SampleRate(c.config.SampleRate)
	tone := c.config.Tone(level)

	parts := make([]beep.Streamer, 0, level*2+1)
	for i := 0; i < level; i++ {
		parts = append(parts, toneStreamer(tone), beep.Silence(rate.N(c.config.Gap)))
	}

	done := make(chan struct{})
	parts = append(parts, beep.Callback(func() { close(done) }))
	speaker.Play(beep.Seq(parts...))
	<-done
	return nil
}

// toneStreamer plays mono samples on both channels once
func toneStreamer(samples []float64) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := copy2(out, samples[pos:])
		pos += n
		return n, true
	})
}

func copy2(out [][2]float64, in []float64) int {
	n := min(len(out), len(in))
	for i := 0; i < n; i++ {
		out[i][0] = in[i]
		out[i][1] = in[i]
	}
	return n
}
