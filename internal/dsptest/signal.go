// Package dsptest has signal helpers shared by the processing tests.
package dsptest

import "math"

// Sine returns n samples of a unit-free sine of amplitude amp.
func Sine(freq, amp, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

// StereoSine interleaves the same sine on both channels.
func StereoSine(freq, amp, sampleRate float64, frames int) []float64 {
	out := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}

func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// DB is 20*log10(a/b).
func DB(a, b float64) float64 {
	return 20 * math.Log10(a/b)
}

// MaxAbsDiff is the largest per-sample difference between a and b.
func MaxAbsDiff(a, b []float64) float64 {
	var m float64
	for i := range a {
		m = math.Max(m, math.Abs(a[i]-b[i]))
	}
	return m
}

// Finite reports whether every sample is a finite number.
func Finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MaxAbsStep is the largest jump between two consecutive samples of one
// channel in an interleaved buffer.
func MaxAbsStep(x []float64, channel, channels int) float64 {
	var m float64
	for i := channel + channels; i < len(x); i += channels {
		m = math.Max(m, math.Abs(x[i]-x[i-channels]))
	}
	return m
}
