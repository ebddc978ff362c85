package suitability

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"skycheck/internal/types"
)

// limitsOverride mirrors Limits with optional entries so a file may
// override a single threshold.
type limitsOverride struct {
	Wind          *Threshold `toml:"wind"`
	Visibility    *Threshold `toml:"visibility"`
	CloudBase     *Threshold `toml:"cloud_base"`
	CloudCover    *Threshold `toml:"cloud_cover"`
	Precipitation *Threshold `toml:"precipitation"`
}

func (o limitsOverride) entries() map[types.Criterion]*Threshold {
	return map[types.Criterion]*Threshold{
		types.CriterionWind:          o.Wind,
		types.CriterionVisibility:    o.Visibility,
		types.CriterionCloudBase:     o.CloudBase,
		types.CriterionCloudCover:    o.CloudCover,
		types.CriterionPrecipitation: o.Precipitation,
	}
}

// LoadLimitsFile reads a TOML file of per-class overrides and merges it over
// DefaultLimits. An empty path returns the defaults.
//
//	[light]
//	wind = { good = 12, poor = 20 }
//	cloud_base = { good = 2000, poor = 1200 }
func LoadLimitsFile(path string) (map[types.AircraftClass]Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("limits file not found: %s", path)
	}

	var file map[string]limitsOverride
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode limits file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in limits file: %v", undecoded)
	}

	return mergeLimits(limits, file)
}

func mergeLimits(base map[types.AircraftClass]Limits, file map[string]limitsOverride) (map[types.AircraftClass]Limits, error) {
	for name, override := range file {
		class := types.AircraftClass(name)
		l, ok := base[class]
		if !ok {
			return nil, fmt.Errorf("unknown aircraft class %q in limits file", name)
		}
		for c, t := range override.entries() {
			if t != nil {
				l.set(c, *t)
			}
		}
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("invalid limits for %s: %w", class, err)
		}
		base[class] = l
	}
	return base, nil
}
