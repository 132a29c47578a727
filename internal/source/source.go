// Package source produces the interleaved stereo PCM the host feeds to the
// engine.
package source

import (
	"fmt"
	"strings"
)

// Source fills dst with interleaved stereo float32 samples. Read is called
// from the render goroutine only.
type Source interface {
	Read(dst []float32) error
	Close() error
}

type Kind string

const (
	KindNoise   Kind = "noise"
	KindSine    Kind = "sine"
	KindCapture Kind = "capture"
)

type Options struct {
	Kind       Kind
	SampleRate int
	// Frames is the block size a capture stream is opened with.
	Frames int
	// Color is the noise color slider, 0 (brown) to 100 (violet).
	Color  float64
	ToneHz float64
	// Level scales noise and sine output.
	Level float64
}

func New(o Options) (Source, error) {
	switch Kind(strings.ToLower(string(o.Kind))) {
	case KindNoise, "":
		n := NewNoise(o.Level)
		n.SetColor(o.Color)
		return n, nil
	case KindSine:
		return NewSine(o.ToneHz, o.Level, float64(o.SampleRate))
	case KindCapture:
		return NewCapture(float64(o.SampleRate), o.Frames)
	}
	return nil, fmt.Errorf("unknown source %q", o.Kind)
}
