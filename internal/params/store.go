// Package params decouples requested parameter values from the ones the render
// path applies.
//
// Control goroutines publish immutable target snapshots through an atomic
// pointer; the render goroutine loads the latest snapshot once per block and
// moves its current values toward it by a bounded linear step. The render side
// never takes a lock, and several writes between two blocks collapse to the
// last one.
package params

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/spatial"
)

const DefaultRampTime = 100 * time.Millisecond

// Spans of a full-range transition. Frequency is ramped in octaves.
var (
	frequencySpan = math.Log2(equalizer.MaxFrequency / equalizer.MinFrequency)
	gainSpan      = equalizer.MaxGainDB - equalizer.MinGainDB
	qSpan         = equalizer.MaxQ - equalizer.MinQ
	masterSpan    = equalizer.MaxMasterGain - equalizer.MinMasterGain
	widthSpan     = spatial.MaxWidth - spatial.MinWidth
)

// Targets is one published set of requested values. A snapshot is never
// modified after it is published.
type Targets struct {
	Bands      []equalizer.Band
	MasterGain float64
	Muted      bool
	Spatial    spatial.Params
}

func (t *Targets) clone() *Targets {
	c := *t
	c.Bands = slices.Clone(t.Bands)
	return &c
}

// EffectiveMasterGain is the gain the render path ramps toward.
func (t *Targets) EffectiveMasterGain() float64 {
	if t.Muted {
		return 0
	}
	return t.MasterGain
}

type Option func(*Store)

// WithRampTime sets how long a full-range transition takes. Zero disables
// smoothing.
func WithRampTime(d time.Duration) Option {
	return func(s *Store) {
		s.rampSeconds = max(d.Seconds(), 0)
	}
}

type Store struct {
	mu      sync.Mutex // serializes writers; the render path never takes it
	targets atomic.Pointer[Targets]

	sampleRate  float64
	rampSeconds float64

	// Render goroutine only.
	bands         []equalizer.Band
	master        float64
	width         float64
	decay         float64
	damping       float64
	wet           float64
	eqPrimed      bool
	spatialPrimed bool
}

func New(sampleRate float64, bands []equalizer.Band, sp spatial.Params, opts ...Option) (*Store, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %g", dsperr.ErrInvalidParameter, sampleRate)
	}
	t := &Targets{
		Bands:      make([]equalizer.Band, len(bands)),
		MasterGain: 1,
	}
	for i, b := range bands {
		sb, ok, err := equalizer.Sanitize(b)
		if !ok {
			return nil, fmt.Errorf("band %d: %w", i, err)
		}
		t.Bands[i] = sb
	}
	ssp, ok, err := sp.Sanitize()
	if !ok {
		return nil, err
	}
	t.Spatial = ssp

	s := &Store{
		sampleRate:  sampleRate,
		rampSeconds: DefaultRampTime.Seconds(),
		bands:       slices.Clone(t.Bands),
		master:      t.MasterGain,
		width:       ssp.Width,
		decay:       ssp.Decay,
		damping:     ssp.Damping,
		wet:         ssp.WetFactor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.targets.Store(t)
	return s, nil
}

// Targets returns the latest published snapshot. Callers must not modify it.
func (s *Store) Targets() *Targets {
	return s.targets.Load()
}

func (s *Store) NumBands() int {
	return len(s.bands)
}

// update publishes a modified copy of the current targets. fn reports whether
// the copy should be published and the error to return either way.
func (s *Store) update(fn func(t *Targets) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.targets.Load().clone()
	commit, err := fn(next)
	if commit {
		s.targets.Store(next)
	}
	return err
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.bands) {
		return fmt.Errorf("%w: band index %d out of [0,%d)", dsperr.ErrInvalidParameter, index, len(s.bands))
	}
	return nil
}

// SetBand requests new values for one band, keeping its filter type.
func (s *Store) SetBand(index int, frequency, gainDB, q float64) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.update(func(t *Targets) (bool, error) {
		b, ok, err := equalizer.Sanitize(equalizer.Band{
			Frequency: frequency,
			GainDB:    gainDB,
			Q:         q,
			Type:      t.Bands[index].Type,
		})
		if !ok {
			return false, err
		}
		t.Bands[index] = b
		return true, err
	})
}

// SetBandGain requests a new gain for one band.
func (s *Store) SetBandGain(index int, gainDB float64) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.update(func(t *Targets) (bool, error) {
		g, ok, err := dsperr.Clamp("gain", gainDB, equalizer.MinGainDB, equalizer.MaxGainDB)
		if !ok {
			return false, err
		}
		t.Bands[index].GainDB = g
		return true, err
	})
}

// SetBandConfig requests a full band including its filter type.
func (s *Store) SetBandConfig(index int, b equalizer.Band) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.update(func(t *Targets) (bool, error) {
		sb, ok, err := equalizer.Sanitize(b)
		if !ok {
			return false, err
		}
		t.Bands[index] = sb
		return true, err
	})
}

// SetBands replaces every band or none. Wrong length or non-finite values are
// rejected; out-of-range values are clamped silently.
func (s *Store) SetBands(bands []equalizer.Band) error {
	if len(bands) != len(s.bands) {
		return fmt.Errorf("%w: %d bands given, engine has %d", dsperr.ErrInvalidParameter, len(bands), len(s.bands))
	}
	return s.update(func(t *Targets) (bool, error) {
		for i, b := range bands {
			sb, ok, err := equalizer.Sanitize(b)
			if !ok {
				return false, fmt.Errorf("band %d: %w", i, err)
			}
			t.Bands[i] = sb
		}
		return true, nil
	})
}

func (s *Store) SetMasterGain(g float64) error {
	return s.update(func(t *Targets) (bool, error) {
		v, ok, err := dsperr.Clamp("master gain", g, equalizer.MinMasterGain, equalizer.MaxMasterGain)
		if !ok {
			return false, err
		}
		t.MasterGain = v
		return true, err
	})
}

func (s *Store) SetMuted(muted bool) {
	_ = s.update(func(t *Targets) (bool, error) {
		t.Muted = muted
		return true, nil
	})
}

func (s *Store) setSpatialField(name string, v, lo, hi float64, field func(p *spatial.Params) *float64) error {
	return s.update(func(t *Targets) (bool, error) {
		c, ok, err := dsperr.Clamp(name, v, lo, hi)
		if !ok {
			return false, err
		}
		*field(&t.Spatial) = c
		return true, err
	})
}

func (s *Store) SetWidth(v float64) error {
	return s.setSpatialField("width", v, spatial.MinWidth, spatial.MaxWidth,
		func(p *spatial.Params) *float64 { return &p.Width })
}

func (s *Store) SetDecay(v float64) error {
	return s.setSpatialField("decay", v, 0, 1, func(p *spatial.Params) *float64 { return &p.Decay })
}

func (s *Store) SetDamping(v float64) error {
	return s.setSpatialField("damping", v, 0, 1, func(p *spatial.Params) *float64 { return &p.Damping })
}

func (s *Store) SetMix(v float64) error {
	return s.setSpatialField("mix", v, 0, 1, func(p *spatial.Params) *float64 { return &p.Mix })
}

func (s *Store) SetSpatialEnabled(on bool) {
	_ = s.update(func(t *Targets) (bool, error) {
		t.Spatial.Enabled = on
		return true, nil
	})
}

// SetSpatialValues replaces width, decay, damping and mix together, leaving
// Enabled as it is. Non-finite values reject the whole update; out-of-range
// values are clamped silently.
func (s *Store) SetSpatialValues(width, decay, damping, mix float64) error {
	return s.update(func(t *Targets) (bool, error) {
		p, ok, err := spatial.Params{
			Width:   width,
			Decay:   decay,
			Damping: damping,
			Mix:     mix,
			Enabled: t.Spatial.Enabled,
		}.Sanitize()
		if !ok {
			return false, err
		}
		t.Spatial = p
		return true, nil
	})
}

func (s *Store) fraction(numFrames int) float64 {
	if s.rampSeconds <= 0 {
		return math.Inf(1)
	}
	return float64(numFrames) / (s.rampSeconds * s.sampleRate)
}

// ApplyEq advances the equalizer ramps by one block of numFrames and hands the
// resulting values to eq. Values published before the first block are applied
// without ramping. Call it from the render goroutine only.
func (s *Store) ApplyEq(eq *equalizer.Equalizer, numFrames int) {
	frac := s.fraction(numFrames)
	if !s.eqPrimed {
		frac = math.Inf(1)
		s.eqPrimed = true
	}
	t := s.targets.Load()

	for i := range s.bands {
		cur := &s.bands[i]
		want := t.Bands[i]

		if cur.Type != want.Type {
			cur.Type = want.Type
			_ = eq.SetBandType(i, want.Type)
		}

		f, fc := stepLog(cur.Frequency, want.Frequency, frequencySpan*frac)
		g, gc := step(cur.GainDB, want.GainDB, gainSpan*frac)
		q, qc := step(cur.Q, want.Q, qSpan*frac)
		if fc || gc || qc {
			cur.Frequency, cur.GainDB, cur.Q = f, g, q
			_ = eq.SetBand(i, f, g, q)
		}
	}

	if m, changed := step(s.master, t.EffectiveMasterGain(), masterSpan*frac); changed {
		s.master = m
		_ = eq.SetMasterGain(m)
	}
}

// ApplySpatial advances the spatial ramps by one block and hands the result to
// sp. Disabling fades the wet factor to zero instead of cutting it.
func (s *Store) ApplySpatial(sp *spatial.Spatializer, numFrames int) {
	frac := s.fraction(numFrames)
	if !s.spatialPrimed {
		frac = math.Inf(1)
		s.spatialPrimed = true
	}
	want := s.targets.Load().Spatial

	w, wc := step(s.width, want.Width, widthSpan*frac)
	d, dc := step(s.decay, want.Decay, frac)
	dm, dmc := step(s.damping, want.Damping, frac)
	wet, wetc := step(s.wet, want.WetFactor(), frac)
	if wc || dc || dmc || wetc {
		s.width, s.decay, s.damping, s.wet = w, d, dm, wet
		sp.Apply(w, d, dm, wet)
	}
}

// step moves cur toward target by at most maxStep.
func step(cur, target, maxStep float64) (float64, bool) {
	if cur == target {
		return cur, false
	}
	d := target - cur
	if math.Abs(d) <= maxStep {
		return target, true
	}
	if d > 0 {
		return cur + maxStep, true
	}
	return cur - maxStep, true
}

// stepLog is step in log2 space, for frequencies.
func stepLog(cur, target, maxOctaves float64) (float64, bool) {
	if cur == target {
		return cur, false
	}
	lc, lt := math.Log2(cur), math.Log2(target)
	if math.Abs(lt-lc) <= maxOctaves {
		return target, true
	}
	if lt > lc {
		return math.Exp2(lc + maxOctaves), true
	}
	return math.Exp2(lc - maxOctaves), true
}
