package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/engine"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/filter"
)

type fakeResetter struct{ n int }

func (r *fakeResetter) RequestReset() { r.n++ }

type fakeColor struct{ v float64 }

func (c *fakeColor) SetColor(v float64) { c.v = v }
func (c *fakeColor) Color() float64     { return c.v }

type fakeMeter struct {
	freqs []float64
	err   error
}

func (m *fakeMeter) Levels(freqs []float64) ([]float64, error) {
	m.freqs = freqs
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, len(freqs))
	for i := range out {
		out[i] = -float64(i)
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) PublishState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func newDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	b, err := engine.Create(48000, 256, engine.WithEqChannels(2))
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return NewDispatcher(b, opts...)
}

func state(t *testing.T, d *Dispatcher) State {
	t.Helper()
	s, err := d.State()
	require.NoError(t, err)
	return s
}

func TestPowerMapsToMute(t *testing.T) {
	d := newDispatcher(t)
	assert.True(t, state(t, d).Power)

	require.NoError(t, d.Dispatch(Command{Action: ActionStopAll}))
	assert.False(t, state(t, d).Power)
	settings, err := d.bridge.Settings()
	require.NoError(t, err)
	assert.True(t, settings.Muted)

	require.NoError(t, d.Dispatch(Command{Action: ActionPowerOn}))
	settings, err = d.bridge.Settings()
	require.NoError(t, err)
	assert.False(t, settings.Muted)
}

func TestPresetTracking(t *testing.T) {
	d := newDispatcher(t)

	require.NoError(t, d.Dispatch(Command{Action: ActionPreset, Preset: "rock"}))
	require.NoError(t, d.Dispatch(Command{Action: ActionPreset, Preset: "Studio"}))
	s := state(t, d)
	assert.Equal(t, "Rock", s.EqPreset)
	assert.Equal(t, "Studio", s.SpatialPreset)
	assert.Equal(t, 5.0, s.Bands[0].GainDB)
	assert.Equal(t, 0.9, s.Spatial.Damping)

	// A rejected edit keeps the preset name.
	err := d.Dispatch(Command{Action: ActionBandGain, Index: 99, Value: 1})
	assert.ErrorIs(t, err, dsperr.ErrInvalidParameter)
	assert.Equal(t, "Rock", state(t, d).EqPreset)

	// A clamped edit is still an edit.
	err = d.Dispatch(Command{Action: ActionBandGain, Index: 1, Value: 40})
	assert.ErrorIs(t, err, dsperr.ErrClamped)
	s = state(t, d)
	assert.Equal(t, CustomPreset, s.EqPreset)
	assert.Equal(t, "Studio", s.SpatialPreset)
	assert.Equal(t, equalizer.MaxGainDB, s.Bands[1].GainDB)

	require.NoError(t, d.Dispatch(Command{Action: ActionMix, Value: 0.5}))
	assert.Equal(t, CustomPreset, state(t, d).SpatialPreset)

	err = d.Dispatch(Command{Action: ActionPreset, Preset: "Polka"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestLoadPreset(t *testing.T) {
	d := newDispatcher(t)
	data := json.RawMessage(`{"name":"Mine","params":{"width":1.3,"decay":0.1,"damping":0.2,"mix":0.3}}`)

	require.NoError(t, d.Dispatch(Command{Action: ActionLoadPreset, PresetData: data}))
	s := state(t, d)
	assert.Equal(t, "Mine", s.SpatialPreset)
	assert.Equal(t, 1.3, s.Spatial.Width)

	err := d.Dispatch(Command{Action: ActionLoadPreset, PresetData: json.RawMessage(`{"name":"Bad","bands":[]}`)})
	assert.ErrorIs(t, err, dsperr.ErrMalformedPreset)
	assert.Equal(t, "Mine", state(t, d).SpatialPreset)
}

func TestBandCommand(t *testing.T) {
	d := newDispatcher(t)
	band := equalizer.Band{Frequency: 80, GainDB: 4, Q: 0.7, Type: filter.LowShelf}

	require.NoError(t, d.Dispatch(Command{Action: ActionBand, Index: 0, Band: &band}))
	assert.Equal(t, band, state(t, d).Bands[0])

	assert.ErrorIs(t, d.Dispatch(Command{Action: ActionBand, Index: 0}), dsperr.ErrInvalidParameter)
}

func TestOptionalCollaborators(t *testing.T) {
	d := newDispatcher(t)
	assert.ErrorIs(t, d.Dispatch(Command{Action: ActionColor, Value: 40}), ErrUnknownCommand)
	assert.NoError(t, d.Dispatch(Command{Action: ActionReset}))
	assert.Nil(t, state(t, d).Color)
	assert.Nil(t, state(t, d).Spectrum)

	r, c, m := &fakeResetter{}, &fakeColor{}, &fakeMeter{}
	d = newDispatcher(t, WithResetter(r), WithColorSetter(c), WithLevelMeter(m))
	require.NoError(t, d.Dispatch(Command{Action: ActionReset}))
	require.NoError(t, d.Dispatch(Command{Action: ActionColor, Value: 40}))
	assert.Equal(t, 1, r.n)

	s := state(t, d)
	require.NotNil(t, s.Color)
	assert.Equal(t, 40.0, *s.Color)
	assert.Len(t, s.Spectrum, 10)
	assert.Equal(t, equalizer.DefaultFrequencies, m.freqs)

	m.err = errors.New("busy")
	assert.Nil(t, state(t, d).Spectrum)
}

func TestUnknownAction(t *testing.T) {
	d := newDispatcher(t)
	assert.ErrorIs(t, d.Dispatch(Command{Action: "explode"}), ErrUnknownCommand)
}

func TestRunPublishes(t *testing.T) {
	d := newDispatcher(t)
	rec := &recorder{}
	cmds := make(chan Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, cmds, time.Hour, rec)
		close(done)
	}()

	cmds <- Command{Action: ActionVolume, Value: 0.5}
	cmds <- Command{Action: "bogus"}
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, 0.5, rec.states[0].Volume)
	rec.mu.Unlock()

	cancel()
	<-done
}

func TestRunStopsWhenClosed(t *testing.T) {
	d := newDispatcher(t)
	cmds := make(chan Command)
	close(cmds)
	d.Run(context.Background(), cmds, time.Hour)
}
