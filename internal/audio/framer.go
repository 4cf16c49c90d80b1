package audio

// Framer turns variable-size device buffers into fixed frames at SampleRate.
// It downmixes and resamples each buffer, then slices it; samples that do
// not fill a whole frame are carried over to the next Write.
//
// A Framer is owned by one capture goroutine and is not safe for concurrent use.
type Framer struct {
	channels   int
	sampleRate int
	frameSize  int
	pending    []float32
}

// NewFramer creates a framer for a device delivering interleaved samples
// at sampleRate with the given channel count.
func NewFramer(channels, sampleRate int) *Framer {
	if channels < 1 {
		channels = 1
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &Framer{
		channels:   channels,
		sampleRate: sampleRate,
		frameSize:  FrameSamples,
		pending:    make([]float32, 0, FrameSamples*2),
	}
}

// WriteInt16 converts a raw int16 buffer and returns every completed frame.
func (f *Framer) WriteInt16(in []int16) []Frame {
	return f.Write(Int16ToFloat(in))
}

// Write accepts normalized interleaved samples and returns every completed frame.
func (f *Framer) Write(interleaved []float32) []Frame {
	mono := Downmix(interleaved, f.channels)
	mono = Resample(mono, f.sampleRate, SampleRate)
	f.pending = append(f.pending, mono...)

	var frames []Frame
	for len(f.pending) >= f.frameSize {
		frame := make(Frame, f.frameSize)
		copy(frame, f.pending[:f.frameSize])
		frames = append(frames, frame)
		f.pending = f.pending[f.frameSize:]
	}

	// Compact so the backing array does not grow without bound.
	if cap(f.pending) > f.frameSize*8 {
		f.pending = append(make([]float32, 0, f.frameSize*2), f.pending...)
	}
	return frames
}

// Flush returns the carried-over tail as a final frame when it is at least
// half a frame long, and discards it otherwise.
func (f *Framer) Flush() (Frame, bool) {
	tail := f.pending
	f.pending = f.pending[:0]
	if len(tail) < f.frameSize/2 {
		return nil, false
	}
	frame := make(Frame, len(tail))
	copy(frame, tail)
	return frame, true
}

// Channels returns the device channel count
func (f *Framer) Channels() int {
	return f.channels
}

// DeviceSampleRate returns the native rate of the device
func (f *Framer) DeviceSampleRate() int {
	return f.sampleRate
}
