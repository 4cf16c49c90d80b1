package audio

import "math"

// Int16ToFloat normalizes signed 16-bit PCM to [-1, 1) using the 32768 scale.
func Int16ToFloat(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// FloatToInt16 converts normalized samples back to 16-bit PCM with clipping
func FloatToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := math.Round(float64(s) * 32767.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. A channel
// count of 1 or less returns the input unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts samples from one rate to another by linear
// interpolation. The output length is int(len(in) * to / from).
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}

	n := int(float64(len(in)) * float64(to) / float64(from))
	if n == 0 {
		return nil
	}

	out := make([]float32, n)
	last := len(in) - 1
	// Sample positions span [0, len(in)] across the output, clamped at the end.
	step := float64(len(in)) / float64(max(n-1, 1))
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}
