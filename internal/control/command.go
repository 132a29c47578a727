// Package control turns remote commands into engine setter calls and reports
// the resulting state.
package control

import (
	"encoding/json"

	"github.com/agusx1211/spatial-eq/internal/equalizer"
)

const (
	ActionPowerOn        = "set_power_on"
	ActionPowerOff       = "set_power_off"
	ActionVolume         = "set_volume"
	ActionBandGain       = "set_band_gain"
	ActionBand           = "set_band"
	ActionWidth          = "set_width"
	ActionDecay          = "set_decay"
	ActionDamping        = "set_damping"
	ActionMix            = "set_mix"
	ActionSpatialEnabled = "set_spatial"
	ActionPreset         = "set_preset"
	ActionLoadPreset     = "load_preset"
	ActionColor          = "set_color"
	ActionReset          = "reset"
	ActionStopAll        = "stop_all"
)

// Command is one request from a control surface. Which fields are used
// depends on Action.
type Command struct {
	Action     string          `json:"action"`
	Index      int             `json:"index,omitempty"`
	Value      float64         `json:"value,omitempty"`
	Enabled    bool            `json:"enabled,omitempty"`
	Band       *equalizer.Band `json:"band,omitempty"`
	Preset     string          `json:"preset,omitempty"`
	PresetData json.RawMessage `json:"preset_data,omitempty"`
}
