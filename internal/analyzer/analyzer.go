// Package analyzer measures the spectrum of the processed output.
//
// The render goroutine feeds it with Write, which never blocks: if a reader
// holds the lock the block is dropped. Levels runs the FFT on the reader's
// goroutine.
package analyzer

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Floor is the level reported for silence.
const Floor = -120.0

type Analyzer struct {
	mu sync.Mutex // guards the ring; Write only ever tries it

	// compute guards the FFT scratch buffers. Levels holds it for the whole
	// transform.
	compute sync.Mutex

	sampleRate float64
	size       int

	ring   []float64
	write  int
	filled int

	plan   *algofft.Plan[complex128]
	window []float64
	frame  []float64
	in     []complex128
	out    []complex128
	re, im []float64
	power  []float64

	// norm maps the power of a full-scale sine to 1.
	norm float64
}

// New creates an analyzer over the last size mono samples. size must be a
// power of two.
func New(sampleRate float64, size int) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %g", sampleRate)
	}
	if size < 16 || size&(size-1) != 0 {
		return nil, fmt.Errorf("analyzer size %d is not a power of two >= 16", size)
	}
	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fft plan: %w", err)
	}

	bins := size/2 + 1
	a := &Analyzer{
		sampleRate: sampleRate,
		size:       size,
		ring:       make([]float64, size),
		plan:       plan,
		window:     make([]float64, size),
		frame:      make([]float64, size),
		in:         make([]complex128, size),
		out:        make([]complex128, size),
		re:         make([]float64, bins),
		im:         make([]float64, bins),
		power:      make([]float64, bins),
	}

	var sum float64
	for i := range a.window {
		a.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
		sum += a.window[i]
	}
	// A sine of amplitude 1 puts (sum/2)^2 into its bin.
	a.norm = 1 / ((sum / 2) * (sum / 2))
	return a, nil
}

func (a *Analyzer) Size() int { return a.size }

// Write appends interleaved stereo samples, downmixed to mono. It returns
// false when the block was dropped because a reader held the lock.
func (a *Analyzer) Write(stereo []float32) bool {
	if !a.mu.TryLock() {
		return false
	}
	defer a.mu.Unlock()

	for i := 0; i+1 < len(stereo); i += 2 {
		a.ring[a.write] = (float64(stereo[i]) + float64(stereo[i+1])) * 0.5
		a.write++
		if a.write == a.size {
			a.write = 0
		}
	}
	a.filled = min(a.filled+len(stereo)/2, a.size)
	return true
}

// Reset forgets everything written so far.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.write = 0
	a.filled = 0
}

// Levels returns the level in dBFS around each of freqs, where a full-scale
// sine reads 0 dB. Each level sums the bins within half an octave of its
// frequency. Until a full window has been written every level is Floor.
func (a *Analyzer) Levels(freqs []float64) ([]float64, error) {
	out := make([]float64, len(freqs))
	for i := range out {
		out[i] = Floor
	}

	a.compute.Lock()
	defer a.compute.Unlock()

	a.mu.Lock()
	if a.filled < a.size {
		a.mu.Unlock()
		return out, nil
	}
	// Oldest sample first.
	n := copy(a.frame, a.ring[a.write:])
	copy(a.frame[n:], a.ring[:a.write])
	a.mu.Unlock()

	vecmath.MulBlockInPlace(a.frame, a.window)
	for i, v := range a.frame {
		a.in[i] = complex(v, 0)
	}
	if err := a.plan.Forward(a.out, a.in); err != nil {
		return nil, fmt.Errorf("fft failed: %w", err)
	}
	for i := range a.re {
		a.re[i] = real(a.out[i])
		a.im[i] = imag(a.out[i])
	}
	vecmath.Power(a.power, a.re, a.im)

	binHz := a.sampleRate / float64(a.size)
	last := len(a.power) - 1
	for i, f := range freqs {
		if !(f > 0 && f < a.sampleRate/2) {
			continue
		}
		lo := int(math.Floor(f / math.Sqrt2 / binHz))
		hi := int(math.Ceil(f * math.Sqrt2 / binHz))
		lo = max(lo, 1)
		hi = min(hi, last)
		if lo > hi {
			continue
		}
		var sum float64
		for k := lo; k <= hi; k++ {
			sum += a.power[k]
		}
		// Hann spreads a tone over three bins; their power sums to 1.5x the peak.
		p := sum * a.norm / 1.5
		if p > 0 {
			out[i] = max(10*math.Log10(p), Floor)
		}
	}
	return out, nil
}
