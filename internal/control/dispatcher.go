package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/engine"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/spatial"
)

// CustomPreset is reported once a preset has been edited by hand.
const CustomPreset = "Custom"

// ErrUnknownCommand reports an action or preset name nobody handles.
var ErrUnknownCommand = errors.New("unknown command")

// Resetter clears processing state before the next block.
type Resetter interface {
	RequestReset()
}

// ColorSetter is implemented by sources with a noise color control.
type ColorSetter interface {
	SetColor(slider float64)
	Color() float64
}

// LevelMeter reports output levels at the given frequencies.
type LevelMeter interface {
	Levels(freqs []float64) ([]float64, error)
}

// Publisher is a control surface that reports state.
type Publisher interface {
	PublishState(State)
}

// State is what control surfaces show.
type State struct {
	Power         bool             `json:"power"`
	Volume        float64          `json:"volume"`
	EqPreset      string           `json:"eq_preset"`
	SpatialPreset string           `json:"spatial_preset"`
	Bands         []equalizer.Band `json:"bands"`
	Spatial       spatial.Params   `json:"spatial"`
	Color         *float64         `json:"color,omitempty"`
	Spectrum      []float64        `json:"spectrum,omitempty"`
}

type Option func(*Dispatcher)

func WithResetter(r Resetter) Option       { return func(d *Dispatcher) { d.resetter = r } }
func WithColorSetter(c ColorSetter) Option { return func(d *Dispatcher) { d.color = c } }
func WithLevelMeter(m LevelMeter) Option   { return func(d *Dispatcher) { d.meter = m } }

// Dispatcher applies commands to one engine. Dispatch and State may be
// called from several goroutines.
type Dispatcher struct {
	bridge   *engine.Bridge
	resetter Resetter
	color    ColorSetter
	meter    LevelMeter

	mu            sync.Mutex
	power         bool
	eqPreset      string
	spatialPreset string
}

func NewDispatcher(b *engine.Bridge, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bridge:        b,
		power:         true,
		eqPreset:      CustomPreset,
		spatialPreset: CustomPreset,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch applies cmd. A clamped value is still applied; the returned error
// then wraps dsperr.ErrInvalidParameter.
func (d *Dispatcher) Dispatch(cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.bridge
	switch cmd.Action {
	case ActionPowerOn:
		d.power = true
		return b.SetMuted(false)
	case ActionPowerOff, ActionStopAll:
		d.power = false
		return b.SetMuted(true)
	case ActionVolume:
		return b.SetMasterGain(cmd.Value)
	case ActionBandGain:
		return d.editEq(b.SetBandGain(cmd.Index, cmd.Value))
	case ActionBand:
		if cmd.Band == nil {
			return fmt.Errorf("%w: %s without band", dsperr.ErrInvalidParameter, cmd.Action)
		}
		return d.editEq(b.SetBandConfig(cmd.Index, *cmd.Band))
	case ActionWidth:
		return d.editSpatial(b.SetWidth(cmd.Value))
	case ActionDecay:
		return d.editSpatial(b.SetDecay(cmd.Value))
	case ActionDamping:
		return d.editSpatial(b.SetDamping(cmd.Value))
	case ActionMix:
		return d.editSpatial(b.SetMix(cmd.Value))
	case ActionSpatialEnabled:
		return b.SetSpatialEnabled(cmd.Enabled)
	case ActionPreset:
		p, ok := engine.FindPreset(cmd.Preset)
		if !ok {
			return fmt.Errorf("%w: preset %q", ErrUnknownCommand, cmd.Preset)
		}
		return d.applyPreset(p)
	case ActionLoadPreset:
		p, err := engine.DecodePreset(cmd.PresetData)
		if err != nil {
			return err
		}
		return d.applyPreset(p)
	case ActionColor:
		if d.color == nil {
			return fmt.Errorf("%w: source has no color control", ErrUnknownCommand)
		}
		d.color.SetColor(cmd.Value)
		return nil
	case ActionReset:
		if d.resetter != nil {
			d.resetter.RequestReset()
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
}

// editEq marks the equalizer preset as edited unless the call was rejected
// outright.
func (d *Dispatcher) editEq(err error) error {
	if dsperr.Stored(err) {
		d.eqPreset = CustomPreset
	}
	return err
}

func (d *Dispatcher) editSpatial(err error) error {
	if dsperr.Stored(err) {
		d.spatialPreset = CustomPreset
	}
	return err
}

func (d *Dispatcher) applyPreset(p engine.Preset) error {
	if err := d.bridge.ApplyPreset(p); err != nil {
		return err
	}
	switch p.(type) {
	case engine.EqPreset, *engine.EqPreset:
		d.eqPreset = p.PresetName()
	default:
		d.spatialPreset = p.PresetName()
	}
	return nil
}

// State snapshots the requested settings, plus the spectrum at each band
// when a meter is attached.
func (d *Dispatcher) State() (State, error) {
	settings, err := d.bridge.Settings()
	if err != nil {
		return State{}, err
	}

	d.mu.Lock()
	s := State{
		Power:         d.power,
		Volume:        settings.MasterGain,
		EqPreset:      d.eqPreset,
		SpatialPreset: d.spatialPreset,
		Bands:         settings.Bands,
		Spatial:       settings.Spatial,
	}
	d.mu.Unlock()

	if d.color != nil {
		c := d.color.Color()
		s.Color = &c
	}
	if d.meter != nil {
		freqs := make([]float64, len(s.Bands))
		for i, b := range s.Bands {
			freqs[i] = b.Frequency
		}
		levels, err := d.meter.Levels(freqs)
		if err != nil {
			logrus.WithError(err).Warn("Failed to measure spectrum")
		} else {
			s.Spectrum = levels
		}
	}
	return s, nil
}

// Run applies commands until ctx is done or commands is closed, publishing
// state after each command and every interval.
func (d *Dispatcher) Run(ctx context.Context, commands <-chan Command, interval time.Duration, pubs ...Publisher) {
	stateTicker := time.NewTicker(interval)
	defer stateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := d.Dispatch(cmd); err != nil {
				logrus.WithFields(logrus.Fields{
					"action": cmd.Action,
				}).WithError(err).Warn("Command not fully applied")
			}
			d.publish(pubs)
		case <-stateTicker.C:
			d.publish(pubs)
		}
	}
}

func (d *Dispatcher) publish(pubs []Publisher) {
	s, err := d.State()
	if err != nil {
		logrus.WithError(err).Error("Failed to read engine state")
		return
	}
	for _, p := range pubs {
		p.PublishState(s)
	}
}
