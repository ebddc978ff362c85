package suitability

import (
	"fmt"
	"math"

	"skycheck/internal/types"
)

// Direction says which way a criterion improves.
type Direction int

const (
	// LowerIsBetter: good below Good, poor at or above Poor.
	LowerIsBetter Direction = iota
	// HigherIsBetter: good at or above Good, poor below Poor.
	HigherIsBetter
)

// Threshold holds the two boundaries for one criterion.
type Threshold struct {
	Good float64 `toml:"good" json:"good"`
	Poor float64 `toml:"poor" json:"poor"`
}

// Limits is the threshold set for one aircraft class. Wind is in knots,
// visibility in metres, cloud base in feet, cover in percent and
// precipitation in mm/h.
type Limits struct {
	Wind          Threshold `json:"wind"`
	Visibility    Threshold `json:"visibility"`
	CloudBase     Threshold `json:"cloud_base"`
	CloudCover    Threshold `json:"cloud_cover"`
	Precipitation Threshold `json:"precipitation"`
}

// For returns the threshold for c.
func (l Limits) For(c types.Criterion) Threshold {
	switch c {
	case types.CriterionWind:
		return l.Wind
	case types.CriterionVisibility:
		return l.Visibility
	case types.CriterionCloudBase:
		return l.CloudBase
	case types.CriterionCloudCover:
		return l.CloudCover
	case types.CriterionPrecipitation:
		return l.Precipitation
	}
	return Threshold{}
}

// set replaces the threshold for c.
func (l *Limits) set(c types.Criterion, t Threshold) {
	switch c {
	case types.CriterionWind:
		l.Wind = t
	case types.CriterionVisibility:
		l.Visibility = t
	case types.CriterionCloudBase:
		l.CloudBase = t
	case types.CriterionCloudCover:
		l.CloudCover = t
	case types.CriterionPrecipitation:
		l.Precipitation = t
	}
}

type criterionMeta struct {
	dir  Direction
	unit string
}

var criteria = map[types.Criterion]criterionMeta{
	types.CriterionWind:          {LowerIsBetter, "kt"},
	types.CriterionVisibility:    {HigherIsBetter, "m"},
	types.CriterionCloudBase:     {HigherIsBetter, "ft"},
	types.CriterionCloudCover:    {LowerIsBetter, "%"},
	types.CriterionPrecipitation: {LowerIsBetter, "mm/h"},
}

// DirectionOf returns the direction for c.
func DirectionOf(c types.Criterion) Direction {
	return criteria[c].dir
}

// DefaultLimits returns a fresh copy of the built-in thresholds.
func DefaultLimits() map[types.AircraftClass]Limits {
	return map[types.AircraftClass]Limits{
		types.AircraftJet: {
			Wind:          Threshold{Good: 25, Poor: 40},
			Visibility:    Threshold{Good: 5000, Poor: 1500},
			CloudBase:     Threshold{Good: 1000, Poor: 500},
			CloudCover:    Threshold{Good: 60, Poor: 95},
			Precipitation: Threshold{Good: 2, Poor: 8},
		},
		types.AircraftLight: {
			Wind:          Threshold{Good: 15, Poor: 25},
			Visibility:    Threshold{Good: 8000, Poor: 5000},
			CloudBase:     Threshold{Good: 1500, Poor: 1000},
			CloudCover:    Threshold{Good: 50, Poor: 90},
			Precipitation: Threshold{Good: 0.5, Poor: 2.5},
		},
		types.AircraftMicrolight: {
			Wind:          Threshold{Good: 10, Poor: 18},
			Visibility:    Threshold{Good: 10000, Poor: 5000},
			CloudBase:     Threshold{Good: 2000, Poor: 1200},
			CloudCover:    Threshold{Good: 40, Poor: 80},
			Precipitation: Threshold{Good: 0.1, Poor: 1},
		},
	}
}

// Validate checks that every boundary is finite, non-negative and ordered
// for its direction.
func (l Limits) Validate() error {
	for _, c := range types.AllCriteria {
		t := l.For(c)
		if !isFinite(t.Good) || !isFinite(t.Poor) || t.Good < 0 || t.Poor < 0 {
			return fmt.Errorf("%s: thresholds must be finite and non-negative", c)
		}
		switch DirectionOf(c) {
		case LowerIsBetter:
			if t.Good > t.Poor {
				return fmt.Errorf("%s: good (%g) must not exceed poor (%g)", c, t.Good, t.Poor)
			}
		case HigherIsBetter:
			if t.Good < t.Poor {
				return fmt.Errorf("%s: good (%g) must not be below poor (%g)", c, t.Good, t.Poor)
			}
		}
	}
	return nil
}

// describe renders a threshold for display, e.g. "good < 15 kt, poor >= 25 kt".
func describe(c types.Criterion, t Threshold) string {
	m := criteria[c]
	if m.dir == HigherIsBetter {
		return fmt.Sprintf("good >= %g %s, poor < %g %s", t.Good, m.unit, t.Poor, m.unit)
	}
	return fmt.Sprintf("good < %g %s, poor >= %g %s", t.Good, m.unit, t.Poor, m.unit)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
