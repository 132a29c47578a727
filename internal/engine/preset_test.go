package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/filter"
)

func TestEqPresetRoundTrip(t *testing.T) {
	b := newBridge(t)

	for _, p := range EqPresets() {
		require.NoError(t, b.ApplyPreset(p), p.Name)
		s, err := b.Settings()
		require.NoError(t, err)
		assert.Equal(t, p.Bands, s.Bands, p.Name)
	}
}

func TestSpatialPresetKeepsEnabled(t *testing.T) {
	b := newBridge(t)
	require.NoError(t, b.SetSpatialEnabled(false))

	p, ok := FindPreset("great hall")
	require.True(t, ok)
	require.NoError(t, b.ApplyPreset(p))

	s, err := b.Settings()
	require.NoError(t, err)
	assert.Equal(t, 1.6, s.Spatial.Width)
	assert.Equal(t, 0.9, s.Spatial.Decay)
	assert.Equal(t, 0.3, s.Spatial.Damping)
	assert.Equal(t, 0.45, s.Spatial.Mix)
	assert.False(t, s.Spatial.Enabled)
}

func TestApplyPresetRejectsMalformed(t *testing.T) {
	b := newBridge(t)
	require.NoError(t, b.SetBandGain(0, 2))
	before, err := b.Settings()
	require.NoError(t, err)

	nan := equalizer.DefaultBands(10)
	nan[4].GainDB = math.NaN()

	var nilEq *EqPreset
	cases := map[string]Preset{
		"nil":         nil,
		"nil pointer": nilEq,
		"short":       EqPreset{Name: "short", Bands: equalizer.DefaultBands(9)},
		"non-finite":  EqPreset{Name: "nan", Bands: nan},
		"spatial nan": SpatialPreset{Name: "x", Params: SpatialValues{Width: 1, Decay: math.Inf(-1)}},
		"bad type":    EqPreset{Name: "t", Bands: append(equalizer.DefaultBands(9), equalizer.Band{Frequency: 100, Q: 1, Type: filter.Type(7)})},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, b.ApplyPreset(p), dsperr.ErrMalformedPreset)
			after, err := b.Settings()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestApplyPresetClampsSilently(t *testing.T) {
	b := newBridge(t)
	bands := equalizer.DefaultBands(10)
	bands[0].GainDB = 30
	require.NoError(t, b.ApplyPreset(&EqPreset{Name: "loud", Bands: bands}))

	bands[1].GainDB = 5 // the engine holds its own copy
	s, err := b.Settings()
	require.NoError(t, err)
	assert.Equal(t, equalizer.MaxGainDB, s.Bands[0].GainDB)
	assert.Equal(t, 0.0, s.Bands[1].GainDB)

	require.NoError(t, b.ApplyPreset(SpatialPreset{Name: "wide", Params: SpatialValues{Width: 9, Decay: 0.5, Damping: 0.5, Mix: 0.5}}))
	s, err = b.Settings()
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Spatial.Width)
}

func TestDecodePreset(t *testing.T) {
	p, err := DecodePreset([]byte(`{"name":"Warm","bands":[{"frequency":100,"gain":3,"q":0.7,"type":"lowshelf"},{"frequency":8000,"gain":-2,"q":1}]}`))
	require.NoError(t, err)
	eq, ok := p.(EqPreset)
	require.True(t, ok)
	assert.Equal(t, "Warm", eq.PresetName())
	assert.Equal(t, []equalizer.Band{
		{Frequency: 100, GainDB: 3, Q: 0.7, Type: filter.LowShelf},
		{Frequency: 8000, GainDB: -2, Q: 1},
	}, eq.Bands)

	p, err = DecodePreset([]byte(`{"name":"Room","params":{"width":1.2,"decay":0.4,"damping":0.5,"mix":0}}`))
	require.NoError(t, err)
	assert.Equal(t, SpatialPreset{Name: "Room", Params: SpatialValues{Width: 1.2, Decay: 0.4, Damping: 0.5}}, p)
}

func TestDecodePresetErrors(t *testing.T) {
	for name, in := range map[string]string{
		"not json":      `{`,
		"empty":         `{"name":"x"}`,
		"both":          `{"bands":[],"params":{"width":1,"decay":0,"damping":0,"mix":0}}`,
		"missing gain":  `{"bands":[{"frequency":100,"q":1}]}`,
		"missing mix":   `{"params":{"width":1,"decay":0,"damping":0}}`,
		"unknown type":  `{"bands":[{"frequency":100,"gain":0,"q":1,"type":"notch"}]}`,
		"string number": `{"params":{"width":"wide","decay":0,"damping":0,"mix":0}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePreset([]byte(in))
			assert.ErrorIs(t, err, dsperr.ErrMalformedPreset)
		})
	}
}

func TestCatalog(t *testing.T) {
	names := PresetNames()
	assert.Len(t, names, 14)
	assert.Equal(t, "Flat", names[0])

	for _, n := range names {
		p, ok := FindPreset(n)
		require.True(t, ok, n)
		assert.Equal(t, n, p.PresetName())
	}
	_, ok := FindPreset("Cathedral")
	assert.False(t, ok)

	rock, ok := FindPreset("ROCK")
	require.True(t, ok)
	assert.Equal(t, 6.0, rock.(EqPreset).Bands[7].GainDB)
}
