package source

import (
	"fmt"
	"math"
)

// Sine is a test tone, identical on both channels.
type Sine struct {
	step  float64
	phase float64
	level float64
}

func NewSine(freq, level, sampleRate float64) (*Sine, error) {
	if !(freq > 0 && freq < sampleRate/2) {
		return nil, fmt.Errorf("tone frequency %g Hz outside (0, %g)", freq, sampleRate/2)
	}
	return &Sine{step: 2 * math.Pi * freq / sampleRate, level: level}, nil
}

func (s *Sine) Read(dst []float32) error {
	for i := 0; i+1 < len(dst); i += 2 {
		v := float32(s.level * math.Sin(s.phase))
		dst[i], dst[i+1] = v, v
		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return nil
}

func (s *Sine) Close() error { return nil }
