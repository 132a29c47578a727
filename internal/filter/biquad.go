package filter

import (
	"fmt"
	"math"
	"strings"
)

type Type int

const (
	Peaking Type = iota
	LowShelf
	HighShelf
	LowPass
	HighPass
)

var typeNames = [...]string{
	Peaking:   "peaking",
	LowShelf:  "lowshelf",
	HighShelf: "highshelf",
	LowPass:   "lowpass",
	HighPass:  "highpass",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("unknown filter type %d", int(t))
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range typeNames {
		if n == name {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown filter type %q", name)
}

const (
	// minQ keeps alpha finite; callers clamp to their own declared range first.
	minQ = 1e-3
	// nyquistMargin keeps w0 strictly below pi.
	nyquistMargin = 0.999
	minFrequency  = 1.0
)

// Biquad is one second-order IIR section in direct form I.
//
// Configure only records the new design and marks the section dirty. The
// coefficients change when Commit runs, which the owner does once per block so
// coefficients never change between two samples of the same block.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64

	kind       Type
	f0         float64
	gainDB     float64
	q          float64
	sampleRate float64
	dirty      bool
}

// New returns a section with its coefficients already computed.
func New(kind Type, f0, gainDB, q, sampleRate float64) *Biquad {
	b := &Biquad{kind: kind}
	b.Configure(f0, gainDB, q, sampleRate)
	b.Commit()
	return b
}

func NewPeaking(f0, gainDB, q, sampleRate float64) *Biquad {
	return New(Peaking, f0, gainDB, q, sampleRate)
}

// Configure stores a new design. The frequency is clamped into (0, sampleRate/2)
// and q is kept positive.
func (b *Biquad) Configure(f0, gainDB, q, sampleRate float64) {
	nyquist := sampleRate / 2
	f0 = math.Max(minFrequency, math.Min(nyquist*nyquistMargin, f0))
	q = math.Max(minQ, q)

	if f0 == b.f0 && gainDB == b.gainDB && q == b.q && sampleRate == b.sampleRate {
		return
	}
	b.f0 = f0
	b.gainDB = gainDB
	b.q = q
	b.sampleRate = sampleRate
	b.dirty = true
}

func (b *Biquad) SetType(kind Type) {
	if kind != b.kind {
		b.kind = kind
		b.dirty = true
	}
}

func (b *Biquad) Type() Type { return b.kind }

// Dirty reports whether a design change is waiting for Commit.
func (b *Biquad) Dirty() bool { return b.dirty }

// Commit recomputes the coefficients if the design changed. The delay state is
// kept so the output stays continuous.
func (b *Biquad) Commit() bool {
	if !b.dirty {
		return false
	}
	b.computeCoefficients()
	b.dirty = false
	return true
}

// Design returns the frequency, gain and q the coefficients are built from
// once committed.
func (b *Biquad) Design() (f0, gainDB, q float64) {
	return b.f0, b.gainDB, b.q
}

// Coefficients returns the normalized b0, b1, b2, a1, a2.
func (b *Biquad) Coefficients() [5]float64 {
	return [5]float64{b.b0, b.b1, b.b2, b.a1, b.a2}
}

// computeCoefficients uses Robert Bristow-Johnson Audio EQ Cookbook formulas.
func (b *Biquad) computeCoefficients() {
	A := math.Pow(10, b.gainDB/40.0)
	w0 := 2 * math.Pi * b.f0 / b.sampleRate
	cosw0 := math.Cos(w0)
	sinw0 := math.Sin(w0)
	alpha := sinw0 / (2 * b.q)

	var b0, b1, b2, a0, a1, a2 float64

	switch b.kind {
	case LowShelf:
		twoSqrtAAlpha := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) - (A-1)*cosw0 + twoSqrtAAlpha)
		b1 = 2 * A * ((A - 1) - (A+1)*cosw0)
		b2 = A * ((A + 1) - (A-1)*cosw0 - twoSqrtAAlpha)
		a0 = (A + 1) + (A-1)*cosw0 + twoSqrtAAlpha
		a1 = -2 * ((A - 1) + (A+1)*cosw0)
		a2 = (A + 1) + (A-1)*cosw0 - twoSqrtAAlpha
	case HighShelf:
		twoSqrtAAlpha := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) + (A-1)*cosw0 + twoSqrtAAlpha)
		b1 = -2 * A * ((A - 1) + (A+1)*cosw0)
		b2 = A * ((A + 1) + (A-1)*cosw0 - twoSqrtAAlpha)
		a0 = (A + 1) - (A-1)*cosw0 + twoSqrtAAlpha
		a1 = 2 * ((A - 1) - (A+1)*cosw0)
		a2 = (A + 1) - (A-1)*cosw0 - twoSqrtAAlpha
	case LowPass:
		b0 = (1 - cosw0) / 2
		b1 = 1 - cosw0
		b2 = (1 - cosw0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	case HighPass:
		b0 = (1 + cosw0) / 2
		b1 = -(1 + cosw0)
		b2 = (1 + cosw0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	default:
		b0 = 1 + alpha*A
		b1 = -2 * cosw0
		b2 = 1 - alpha*A
		a0 = 1 + alpha/A
		a1 = -2 * cosw0
		a2 = 1 - alpha/A
	}

	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

func (b *Biquad) ProcessSample(x float64) float64 {
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2 = b.x1
	b.x1 = x
	b.y2 = b.y1
	b.y1 = y
	return y
}

func (b *Biquad) Process(samples []float64) {
	for i, x := range samples {
		samples[i] = b.ProcessSample(x)
	}
}

// ProcessStrided filters every stride-th sample starting at offset, which
// is how one channel of an interleaved buffer is run through its own section.
func (b *Biquad) ProcessStrided(buf []float64, offset, stride int) {
	for i := offset; i < len(buf); i += stride {
		buf[i] = b.ProcessSample(buf[i])
	}
}

// Reset clears the delay state without touching the coefficients.
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}
