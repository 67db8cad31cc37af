package config

import (
	"sort"

	"github.com/san-kum/pitchsim/internal/physics"
)

// Presets are named parameter sets. baseline and improved are the two
// airframes compared by the robustness campaign; tuning is the sweep base.
var Presets = map[string]physics.Params{
	"nominal": physics.DefaultParams(),
	"baseline": {
		Iyy: 8000, C: 2.0e5, K: 2.5e6, KAct: 5.0e5,
		Kp: 1.0, Ki: 0, ThetaCmdDeg: 1, T: 10, Dt: 0.001,
	},
	"improved": {
		Iyy: 8000, C: 2.2e5, K: 2.8e6, KAct: 5.0e5,
		Kp: 1.3, Ki: 0, ThetaCmdDeg: 1, T: 10, Dt: 0.001,
	},
	"pi-fast": {
		Iyy: 8000, C: 2.4e5, K: 2.5e6, KAct: 5.0e5,
		Kp: 2.0, Ki: 6.0, ThetaCmdDeg: 1, T: 30, Dt: 0.001,
	},
	"tuning": {
		Iyy: 8000, C: 2.4e5, K: 2.5e6, KAct: 5.0e5,
		Kp: 1.3, Ki: 4.0, ThetaCmdDeg: 1, T: 30, Dt: 0.001,
	},
}

// GetPreset returns a config whose params are the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Params = p
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
