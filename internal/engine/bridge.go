// Package engine is the boundary between caller-owned sample memory and the
// processing core.
//
// A *Bridge is the handle for one engine instance. It owns every buffer, filter
// and delay line the instance needs, all allocated by Create. Setters may be
// called from any goroutine; CopyIn, CopyOut, ProcessEq, ProcessSpatial and
// Reset belong to the single render goroutine.
package engine

import (
	"fmt"
	"time"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/params"
	"github.com/agusx1211/spatial-eq/internal/spatial"
)

type Option func(*options) error

type options struct {
	bands      []equalizer.Band
	eqChannels int
	rampTime   time.Duration
	spatial    spatial.Params
}

// WithBands fixes the band layout, and so the band count N.
func WithBands(bands []equalizer.Band) Option {
	return func(o *options) error {
		if len(bands) == 0 {
			return fmt.Errorf("%w: at least one band is required", dsperr.ErrInvalidParameter)
		}
		o.bands = append([]equalizer.Band(nil), bands...)
		return nil
	}
}

// WithBandCount uses the default layout with n bands.
func WithBandCount(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("%w: band count %d", dsperr.ErrInvalidParameter, n)
		}
		o.bands = equalizer.DefaultBands(n)
		return nil
	}
}

// WithEqChannels sets the interleaved channel count ProcessEq works on.
// The default is 1 (mono).
func WithEqChannels(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("%w: channel count %d", dsperr.ErrInvalidParameter, n)
		}
		o.eqChannels = n
		return nil
	}
}

func WithRampTime(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("%w: ramp time %s", dsperr.ErrInvalidParameter, d)
		}
		o.rampTime = d
		return nil
	}
}

func WithSpatialParams(p spatial.Params) Option {
	return func(o *options) error {
		o.spatial = p
		return nil
	}
}

type Bridge struct {
	state stateBox

	sampleRate float64
	maxFrames  int
	eqChannels int

	buf   []float64
	eq    *equalizer.Equalizer
	sp    *spatial.Spatializer
	store *params.Store
}

// Create allocates an engine for blocks of at most maxBlockSamples frames.
// Nothing is allocated afterwards until Destroy.
func Create(sampleRate float64, maxBlockSamples int, opts ...Option) (*Bridge, error) {
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("%w: sample rate %g", dsperr.ErrInvalidParameter, sampleRate)
	}
	if maxBlockSamples <= 0 {
		return nil, fmt.Errorf("%w: max block size %d", dsperr.ErrInvalidParameter, maxBlockSamples)
	}

	o := options{
		bands:      equalizer.DefaultBands(len(equalizer.DefaultFrequencies)),
		eqChannels: 1,
		rampTime:   params.DefaultRampTime,
		spatial:    spatial.DefaultParams,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	eq, err := equalizer.New(sampleRate, maxBlockSamples,
		equalizer.WithBands(o.bands),
		equalizer.WithChannels(o.eqChannels),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create equalizer: %w", err)
	}
	sp, err := spatial.New(sampleRate, maxBlockSamples, o.spatial)
	if err != nil {
		return nil, fmt.Errorf("failed to create spatializer: %w", err)
	}
	store, err := params.New(sampleRate, eq.Bands(), sp.Params(), params.WithRampTime(o.rampTime))
	if err != nil {
		return nil, fmt.Errorf("failed to create parameter store: %w", err)
	}

	b := &Bridge{
		sampleRate: sampleRate,
		maxFrames:  maxBlockSamples,
		eqChannels: o.eqChannels,
		buf:        make([]float64, maxBlockSamples*max(o.eqChannels, 2)),
		eq:         eq,
		sp:         sp,
		store:      store,
	}
	b.state.set(Initialized)
	return b, nil
}

// Destroy releases the instance. Calling it again, or on a nil handle, does
// nothing.
func (b *Bridge) Destroy() {
	if b == nil || b.state.get() == Destroyed {
		return
	}
	b.state.set(Destroyed)
	// The store stays reachable: a setter racing with Destroy on a control
	// goroutine may already be past its state check.
	b.buf = nil
	b.eq = nil
	b.sp = nil
}

func (b *Bridge) State() State {
	if b == nil {
		return Uninitialized
	}
	return b.state.get()
}

func (b *Bridge) live() error {
	if b == nil {
		return fmt.Errorf("%w: nil handle", dsperr.ErrUninitializedEngine)
	}
	switch s := b.state.get(); s {
	case Initialized, Processing:
		return nil
	default:
		return fmt.Errorf("%w: engine is %s", dsperr.ErrUninitializedEngine, s)
	}
}

func (b *Bridge) SampleRate() float64 { return b.sampleRate }
func (b *Bridge) MaxFrames() int      { return b.maxFrames }
func (b *Bridge) EqChannels() int     { return b.eqChannels }

// Capacity is the number of samples CopyIn and CopyOut accept.
func (b *Bridge) Capacity() int { return len(b.buf) }

// CopyIn copies the first n samples of src into engine memory.
func (b *Bridge) CopyIn(src []float32, n int) error {
	if err := b.live(); err != nil {
		return err
	}
	if err := b.checkSpan(len(src), n); err != nil {
		return err
	}
	for i, v := range src[:n] {
		b.buf[i] = float64(v)
	}
	return nil
}

// CopyOut copies the first n engine samples into dst, clipped to [-1, 1].
func (b *Bridge) CopyOut(dst []float32, n int) error {
	if err := b.live(); err != nil {
		return err
	}
	if err := b.checkSpan(len(dst), n); err != nil {
		return err
	}
	for i, v := range b.buf[:n] {
		dst[i] = float32(max(-1, min(1, v)))
	}
	return nil
}

func (b *Bridge) checkSpan(hostLen, n int) error {
	if n < 0 || n > hostLen {
		return fmt.Errorf("%w: %d samples from a host buffer of %d", dsperr.ErrInvalidParameter, n, hostLen)
	}
	if n > len(b.buf) {
		return fmt.Errorf("%w: %d samples exceeds capacity %d", dsperr.ErrBufferSizeMismatch, n, len(b.buf))
	}
	return nil
}

// ProcessEq runs numFrames frames of the copied-in buffer through the
// equalizer. Parameter changes published before the call take effect from the
// start of this block.
func (b *Bridge) ProcessEq(numFrames int) error {
	if err := b.beginBlock(numFrames); err != nil {
		return err
	}
	b.store.ApplyEq(b.eq, numFrames)
	return b.eq.Process(b.buf, numFrames)
}

// ProcessSpatial runs numFrames interleaved stereo frames of the copied-in
// buffer through the spatializer.
func (b *Bridge) ProcessSpatial(numFrames int) error {
	if err := b.beginBlock(numFrames); err != nil {
		return err
	}
	b.store.ApplySpatial(b.sp, numFrames)
	return b.sp.Process(b.buf, numFrames)
}

func (b *Bridge) beginBlock(numFrames int) error {
	if err := b.live(); err != nil {
		return err
	}
	if numFrames < 0 {
		return fmt.Errorf("%w: negative frame count %d", dsperr.ErrInvalidParameter, numFrames)
	}
	if numFrames > b.maxFrames {
		return fmt.Errorf("%w: %d frames exceeds capacity %d", dsperr.ErrBufferSizeMismatch, numFrames, b.maxFrames)
	}
	if b.state.get() == Initialized {
		b.state.set(Processing)
	}
	return nil
}

// Reset clears filter and reverb state, e.g. after a seek, keeping every
// parameter.
func (b *Bridge) Reset() error {
	if err := b.live(); err != nil {
		return err
	}
	b.eq.Reset()
	b.sp.Reset()
	return nil
}

func (b *Bridge) NumBands() (int, error) {
	if err := b.live(); err != nil {
		return 0, err
	}
	return b.store.NumBands(), nil
}

func (b *Bridge) SetBand(index int, frequency, gainDB, q float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetBand(index, frequency, gainDB, q)
}

func (b *Bridge) SetBandGain(index int, gainDB float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetBandGain(index, gainDB)
}

func (b *Bridge) SetBandConfig(index int, band equalizer.Band) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetBandConfig(index, band)
}

// SetEqPreset replaces all bands or none.
func (b *Bridge) SetEqPreset(bands []equalizer.Band) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetBands(bands)
}

func (b *Bridge) SetMasterGain(g float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetMasterGain(g)
}

func (b *Bridge) SetMuted(muted bool) error {
	if err := b.live(); err != nil {
		return err
	}
	b.store.SetMuted(muted)
	return nil
}

func (b *Bridge) SetWidth(v float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetWidth(v)
}

func (b *Bridge) SetDecay(v float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetDecay(v)
}

func (b *Bridge) SetDamping(v float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetDamping(v)
}

func (b *Bridge) SetMix(v float64) error {
	if err := b.live(); err != nil {
		return err
	}
	return b.store.SetMix(v)
}

func (b *Bridge) SetSpatialEnabled(on bool) error {
	if err := b.live(); err != nil {
		return err
	}
	b.store.SetSpatialEnabled(on)
	return nil
}

// Settings is a copy of the requested parameter values.
type Settings struct {
	Bands      []equalizer.Band `json:"bands"`
	MasterGain float64          `json:"master_gain"`
	Muted      bool             `json:"muted"`
	Spatial    spatial.Params   `json:"spatial"`
}

// Settings returns the latest requested values, already validated and
// clamped. The render path may still be ramping toward them.
func (b *Bridge) Settings() (Settings, error) {
	if err := b.live(); err != nil {
		return Settings{}, err
	}
	t := b.store.Targets()
	return Settings{
		Bands:      append([]equalizer.Band(nil), t.Bands...),
		MasterGain: t.MasterGain,
		Muted:      t.Muted,
		Spatial:    t.Spatial,
	}, nil
}
