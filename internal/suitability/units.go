package suitability

import (
	"fmt"
	"strings"
)

// WindUnit is the unit of Snapshot.WindSpeed.
type WindUnit string

const (
	WindKMH   WindUnit = "kmh"
	WindKnots WindUnit = "kt"
	WindMPS   WindUnit = "mps"
	WindMPH   WindUnit = "mph"
)

// VisibilityUnit is the unit of Snapshot.Visibility.
type VisibilityUnit string

const (
	VisibilityMetres      VisibilityUnit = "m"
	VisibilityKilometres  VisibilityUnit = "km"
	VisibilityStatuteMile VisibilityUnit = "sm"
)

// Conversion factors.
const (
	KMHToKnots   = 0.539957
	MPSToKnots   = 1.943844
	MPHToKnots   = 0.868976
	StatuteMileM = 1609.344
)

// ParseWindUnit normalises s; empty selects km/h.
func ParseWindUnit(s string) (WindUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kmh", "km/h", "kph":
		return WindKMH, nil
	case "kt", "kts", "knots":
		return WindKnots, nil
	case "mps", "m/s", "ms":
		return WindMPS, nil
	case "mph":
		return WindMPH, nil
	}
	return "", fmt.Errorf("unknown wind unit %q", s)
}

// ParseVisibilityUnit normalises s; empty selects metres.
func ParseVisibilityUnit(s string) (VisibilityUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "metres", "meters":
		return VisibilityMetres, nil
	case "km":
		return VisibilityKilometres, nil
	case "sm", "mi", "statute_miles":
		return VisibilityStatuteMile, nil
	}
	return "", fmt.Errorf("unknown visibility unit %q", s)
}

// ToKnots converts v from unit to knots.
func ToKnots(v float64, unit WindUnit) (float64, error) {
	switch unit {
	case "", WindKMH:
		return v * KMHToKnots, nil
	case WindKnots:
		return v, nil
	case WindMPS:
		return v * MPSToKnots, nil
	case WindMPH:
		return v * MPHToKnots, nil
	}
	return 0, fmt.Errorf("unknown wind unit %q", unit)
}

// ToMetres converts v from unit to metres.
func ToMetres(v float64, unit VisibilityUnit) (float64, error) {
	switch unit {
	case "", VisibilityMetres:
		return v, nil
	case VisibilityKilometres:
		return v * 1000, nil
	case VisibilityStatuteMile:
		return v * StatuteMileM, nil
	}
	return 0, fmt.Errorf("unknown visibility unit %q", unit)
}
