package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/filter"
)

// Preset is either an EqPreset or a SpatialPreset.
type Preset interface {
	PresetName() string
	isPreset()
}

type EqPreset struct {
	Name  string
	Bands []equalizer.Band
}

func (p EqPreset) PresetName() string { return p.Name }
func (EqPreset) isPreset()            {}

// SpatialValues are the four continuous spatial controls a preset sets.
// A preset never changes whether the effect is enabled.
type SpatialValues struct {
	Width   float64
	Decay   float64
	Damping float64
	Mix     float64
}

type SpatialPreset struct {
	Name   string
	Params SpatialValues
}

func (p SpatialPreset) PresetName() string { return p.Name }
func (SpatialPreset) isPreset()            {}

// ApplyPreset validates p against this engine and commits it as one update.
// On any validation failure it returns ErrMalformedPreset and changes nothing.
// Band values are deep-copied; p is not retained.
func (b *Bridge) ApplyPreset(p Preset) error {
	if err := b.live(); err != nil {
		return err
	}

	switch p := p.(type) {
	case EqPreset:
		return b.applyEq(p)
	case *EqPreset:
		if p == nil {
			return fmt.Errorf("%w: nil preset", dsperr.ErrMalformedPreset)
		}
		return b.applyEq(*p)
	case SpatialPreset:
		return b.applySpatial(p)
	case *SpatialPreset:
		if p == nil {
			return fmt.Errorf("%w: nil preset", dsperr.ErrMalformedPreset)
		}
		return b.applySpatial(*p)
	case nil:
		return fmt.Errorf("%w: nil preset", dsperr.ErrMalformedPreset)
	default:
		return fmt.Errorf("%w: unsupported preset type %T", dsperr.ErrMalformedPreset, p)
	}
}

func (b *Bridge) applyEq(p EqPreset) error {
	n := b.store.NumBands()
	if len(p.Bands) != n {
		return fmt.Errorf("%w: %q has %d bands, engine has %d", dsperr.ErrMalformedPreset, p.Name, len(p.Bands), n)
	}
	for i, band := range p.Bands {
		if _, ok, err := equalizer.Sanitize(band); !ok {
			return fmt.Errorf("%w: %q band %d: %w", dsperr.ErrMalformedPreset, p.Name, i, err)
		}
	}
	if err := b.store.SetBands(p.Bands); err != nil {
		return fmt.Errorf("%w: %q: %w", dsperr.ErrMalformedPreset, p.Name, err)
	}
	return nil
}

func (b *Bridge) applySpatial(p SpatialPreset) error {
	v := p.Params
	for name, x := range map[string]float64{
		"width": v.Width, "decay": v.Decay, "damping": v.Damping, "mix": v.Mix,
	} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %q %s is not finite", dsperr.ErrMalformedPreset, p.Name, name)
		}
	}
	if err := b.store.SetSpatialValues(v.Width, v.Decay, v.Damping, v.Mix); err != nil {
		return fmt.Errorf("%w: %q: %w", dsperr.ErrMalformedPreset, p.Name, err)
	}
	return nil
}

// External preset shapes, as produced by the preset text parser. Pointer
// fields tell a missing value apart from a zero one.
type rawPreset struct {
	Name   string      `json:"name"`
	Bands  []rawBand   `json:"bands"`
	Params *rawSpatial `json:"params"`
}

type rawBand struct {
	Frequency *float64     `json:"frequency"`
	Gain      *float64     `json:"gain"`
	Q         *float64     `json:"q"`
	Type      *filter.Type `json:"type"`
}

type rawSpatial struct {
	Width   *float64 `json:"width"`
	Decay   *float64 `json:"decay"`
	Damping *float64 `json:"damping"`
	Mix     *float64 `json:"mix"`
}

// DecodePreset parses one external preset object into an EqPreset or a
// SpatialPreset. Exactly one of "bands" and "params" must be present, and
// every field of it must be set.
func DecodePreset(data []byte) (Preset, error) {
	var raw rawPreset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", dsperr.ErrMalformedPreset, err)
	}

	switch {
	case raw.Bands != nil && raw.Params != nil:
		return nil, fmt.Errorf("%w: %q has both bands and params", dsperr.ErrMalformedPreset, raw.Name)
	case raw.Bands != nil:
		bands := make([]equalizer.Band, len(raw.Bands))
		for i, rb := range raw.Bands {
			if rb.Frequency == nil || rb.Gain == nil || rb.Q == nil {
				return nil, fmt.Errorf("%w: %q band %d needs frequency, gain and q", dsperr.ErrMalformedPreset, raw.Name, i)
			}
			bands[i] = equalizer.Band{Frequency: *rb.Frequency, GainDB: *rb.Gain, Q: *rb.Q}
			if rb.Type != nil {
				bands[i].Type = *rb.Type
			}
		}
		return EqPreset{Name: raw.Name, Bands: bands}, nil
	case raw.Params != nil:
		rp := raw.Params
		if rp.Width == nil || rp.Decay == nil || rp.Damping == nil || rp.Mix == nil {
			return nil, fmt.Errorf("%w: %q needs width, decay, damping and mix", dsperr.ErrMalformedPreset, raw.Name)
		}
		return SpatialPreset{Name: raw.Name, Params: SpatialValues{
			Width:   *rp.Width,
			Decay:   *rp.Decay,
			Damping: *rp.Damping,
			Mix:     *rp.Mix,
		}}, nil
	}
	return nil, fmt.Errorf("%w: %q has neither bands nor params", dsperr.ErrMalformedPreset, raw.Name)
}
