package engine

import (
	"strings"

	"github.com/agusx1211/spatial-eq/internal/equalizer"
)

var eqGains = []struct {
	name  string
	gains [10]float64
}{
	{"Flat", [10]float64{}},
	{"Rock", [10]float64{5, 3, -1, -2, -1, 2, 4, 6, 6, 5}},
	{"Pop", [10]float64{-1, 2, 4, 4, 2, 0, -1, -1, 0, 1}},
	{"Jazz", [10]float64{3, 2, 1, 2, -1, -1, 0, 1, 2, 3}},
	{"Classical", [10]float64{4, 3, 2, 1, -1, -2, -2, -1, 2, 3}},
	{"Electronic", [10]float64{6, 4, 1, 0, -2, 2, 1, 2, 6, 7}},
	{"Hip Hop", [10]float64{7, 5, 1, 3, -1, -1, 1, 2, 3, 4}},
}

var spatialPresets = []SpatialPreset{
	{"Studio", SpatialValues{Width: 1.0, Decay: 0.25, Damping: 0.9, Mix: 0.15}},
	{"Small Room", SpatialValues{Width: 1.0, Decay: 0.2, Damping: 0.8, Mix: 0.2}},
	{"Light Reverb", SpatialValues{Width: 1.1, Decay: 0.3, Damping: 0.7, Mix: 0.15}},
	{"Echo", SpatialValues{Width: 1.2, Decay: 0.6, Damping: 0.2, Mix: 0.25}},
	{"Auditorium", SpatialValues{Width: 1.4, Decay: 0.7, Damping: 0.4, Mix: 0.35}},
	{"Great Hall", SpatialValues{Width: 1.6, Decay: 0.9, Damping: 0.3, Mix: 0.45}},
	{"Stadium", SpatialValues{Width: 1.9, Decay: 0.8, Damping: 0.4, Mix: 0.4}},
}

// EqPresets returns the built-in equalizer presets on the default ten-band
// layout.
func EqPresets() []EqPreset {
	out := make([]EqPreset, len(eqGains))
	for i, p := range eqGains {
		bands := equalizer.DefaultBands(len(p.gains))
		for j := range bands {
			bands[j].GainDB = p.gains[j]
		}
		out[i] = EqPreset{Name: p.name, Bands: bands}
	}
	return out
}

func SpatialPresets() []SpatialPreset {
	return append([]SpatialPreset(nil), spatialPresets...)
}

// PresetNames lists every built-in preset, equalizer ones first.
func PresetNames() []string {
	names := make([]string, 0, len(eqGains)+len(spatialPresets))
	for _, p := range eqGains {
		names = append(names, p.name)
	}
	for _, p := range spatialPresets {
		names = append(names, p.Name)
	}
	return names
}

// FindPreset looks a built-in preset up by name, ignoring case.
func FindPreset(name string) (Preset, bool) {
	for _, p := range EqPresets() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	for _, p := range spatialPresets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}
