// Package equalizer implements the fixed-length band cascade plus master gain.
//
// An Equalizer is not safe for concurrent use. It is driven from the render
// callback; parameter changes from other goroutines go through params.Store.
package equalizer

import (
	"fmt"

	"github.com/cwbudde/algo-vecmath"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/filter"
)

type Option func(*config) error

type config struct {
	bands      []Band
	channels   int
	masterGain float64
}

// WithBands sets the initial band layout. Its length fixes the cascade length.
func WithBands(bands []Band) Option {
	return func(cfg *config) error {
		if len(bands) == 0 {
			return fmt.Errorf("%w: at least one band is required", dsperr.ErrInvalidParameter)
		}
		cfg.bands = make([]Band, len(bands))
		for i, b := range bands {
			sb, ok, err := Sanitize(b)
			if !ok {
				return fmt.Errorf("band %d: %w", i, err)
			}
			cfg.bands[i] = sb
		}
		return nil
	}
}

// WithChannels sets how many interleaved channels Process expects.
func WithChannels(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("%w: channel count %d", dsperr.ErrInvalidParameter, n)
		}
		cfg.channels = n
		return nil
	}
}

func WithMasterGain(g float64) Option {
	return func(cfg *config) error {
		v, ok, err := dsperr.Clamp("master gain", g, MinMasterGain, MaxMasterGain)
		if !ok {
			return err
		}
		cfg.masterGain = v
		return nil
	}
}

type Equalizer struct {
	sampleRate float64
	channels   int
	maxFrames  int

	bands   []Band
	filters [][]filter.Biquad // [channel][band]

	// gain is what the previous block ended on, targetGain what the next
	// block ramps to.
	gain       float64
	targetGain float64
	gainRamp   []float64
}

// New builds an equalizer for blocks of at most maxFrames frames. All memory
// used by Process is allocated here.
func New(sampleRate float64, maxFrames int, opts ...Option) (*Equalizer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %g", dsperr.ErrInvalidParameter, sampleRate)
	}
	if maxFrames <= 0 {
		return nil, fmt.Errorf("%w: max block size %d", dsperr.ErrInvalidParameter, maxFrames)
	}

	cfg := config{
		bands:      DefaultBands(len(DefaultFrequencies)),
		channels:   1,
		masterGain: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	e := &Equalizer{
		sampleRate: sampleRate,
		channels:   cfg.channels,
		maxFrames:  maxFrames,
		bands:      cfg.bands,
		filters:    make([][]filter.Biquad, cfg.channels),
		gain:       cfg.masterGain,
		targetGain: cfg.masterGain,
		gainRamp:   make([]float64, maxFrames*cfg.channels),
	}
	for ch := range e.filters {
		e.filters[ch] = make([]filter.Biquad, len(e.bands))
		for i, b := range e.bands {
			f := &e.filters[ch][i]
			f.SetType(b.Type)
			f.Configure(b.Frequency, b.GainDB, b.Q, sampleRate)
			f.Commit()
		}
	}
	return e, nil
}

func (e *Equalizer) NumBands() int  { return len(e.bands) }
func (e *Equalizer) Channels() int  { return e.channels }
func (e *Equalizer) MaxFrames() int { return e.maxFrames }

// Band returns the configured band at index.
func (e *Equalizer) Band(index int) (Band, error) {
	if err := e.checkIndex(index); err != nil {
		return Band{}, err
	}
	return e.bands[index], nil
}

func (e *Equalizer) checkIndex(index int) error {
	if index < 0 || index >= len(e.bands) {
		return fmt.Errorf("%w: band index %d out of [0,%d)", dsperr.ErrInvalidParameter, index, len(e.bands))
	}
	return nil
}

// Bands returns a copy of the configured bands.
func (e *Equalizer) Bands() []Band {
	out := make([]Band, len(e.bands))
	copy(out, e.bands)
	return out
}

// SetBand reconfigures one band. An out-of-range index is rejected; values
// outside their range are clamped, stored, and reported. The new coefficients
// take effect at the start of the next Process call.
func (e *Equalizer) SetBand(index int, frequency, gainDB, q float64) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	b, ok, err := Sanitize(Band{Frequency: frequency, GainDB: gainDB, Q: q, Type: e.bands[index].Type})
	if !ok {
		return err
	}
	e.bands[index] = b
	e.configure(index)
	return err
}

// SetBandType switches the response shape of one band.
func (e *Equalizer) SetBandType(index int, kind filter.Type) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	if kind < filter.Peaking || kind > filter.HighPass {
		return fmt.Errorf("%w: unknown filter type %d", dsperr.ErrInvalidParameter, int(kind))
	}
	e.bands[index].Type = kind
	e.configure(index)
	return nil
}

// SetPreset replaces every band or none. The length must match the cascade
// and every value must be finite; in-range clamping is silent.
func (e *Equalizer) SetPreset(bands []Band) error {
	if len(bands) != len(e.bands) {
		return fmt.Errorf("%w: preset has %d bands, engine has %d", dsperr.ErrInvalidParameter, len(bands), len(e.bands))
	}
	for i, b := range bands {
		if _, ok, err := Sanitize(b); !ok {
			return fmt.Errorf("band %d: %w", i, err)
		}
	}
	for i, b := range bands {
		e.bands[i], _, _ = Sanitize(b)
		e.configure(i)
	}
	return nil
}

func (e *Equalizer) configure(index int) {
	b := e.bands[index]
	for ch := range e.filters {
		f := &e.filters[ch][index]
		f.SetType(b.Type)
		f.Configure(b.Frequency, b.GainDB, b.Q, e.sampleRate)
	}
}

// SetMasterGain sets the linear gain the next block ramps to.
func (e *Equalizer) SetMasterGain(g float64) error {
	v, ok, err := dsperr.Clamp("master gain", g, MinMasterGain, MaxMasterGain)
	if !ok {
		return err
	}
	e.targetGain = v
	return err
}

func (e *Equalizer) MasterGain() float64 { return e.targetGain }

// Process filters numFrames interleaved frames of buf in place, then applies
// the master gain, ramping it linearly across the block when it changed.
func (e *Equalizer) Process(buf []float64, numFrames int) error {
	if numFrames < 0 {
		return fmt.Errorf("%w: negative frame count %d", dsperr.ErrInvalidParameter, numFrames)
	}
	if numFrames > e.maxFrames || numFrames*e.channels > len(buf) {
		return fmt.Errorf("%w: %d frames exceeds capacity %d", dsperr.ErrBufferSizeMismatch, numFrames, e.maxFrames)
	}
	if numFrames == 0 {
		return nil
	}

	for ch := range e.filters {
		for i := range e.filters[ch] {
			e.filters[ch][i].Commit()
		}
	}

	block := buf[:numFrames*e.channels]
	for ch := range e.filters {
		for i := range e.filters[ch] {
			e.filters[ch][i].ProcessStrided(block, ch, e.channels)
		}
	}

	e.applyGain(block, numFrames)
	return nil
}

func (e *Equalizer) applyGain(block []float64, numFrames int) {
	from, to := e.gain, e.targetGain
	if from == 1 && to == 1 {
		return
	}

	ramp := e.gainRamp[:len(block)]
	step := (to - from) / float64(numFrames)
	for i := 0; i < numFrames; i++ {
		g := from + step*float64(i+1)
		if i == numFrames-1 {
			g = to
		}
		for ch := 0; ch < e.channels; ch++ {
			ramp[i*e.channels+ch] = g
		}
	}
	vecmath.MulBlockInPlace(block, ramp)
	e.gain = to
}

// Reset zeroes the filter state, e.g. after a seek. Coefficients are kept.
func (e *Equalizer) Reset() {
	for ch := range e.filters {
		for i := range e.filters[ch] {
			e.filters[ch][i].Reset()
		}
	}
}
