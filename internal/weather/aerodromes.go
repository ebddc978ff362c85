// Package weather turns upstream forecasts and METARs into flight
// suitability inputs for a catalogue of UK aerodromes.
package weather

import (
	"regexp"
	"sort"
	"strings"

	"skycheck/internal/types"
)

// Aerodrome is a catalogue entry.
type Aerodrome struct {
	ICAO        string  `json:"icao"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ElevationFt int     `json:"elevation_ft"`
}

var icaoPattern = regexp.MustCompile(`^[A-Z]{4}$`)

var ukAerodromes = []Aerodrome{
	{"EGAA", "Belfast International", 54.6575, -6.2158, 268},
	{"EGBB", "Birmingham", 52.4539, -1.7480, 339},
	{"EGBJ", "Gloucestershire", 51.8942, -2.1672, 101},
	{"EGBT", "Turweston", 52.0408, -1.0956, 448},
	{"EGCC", "Manchester", 53.3537, -2.2750, 257},
	{"EGFF", "Cardiff", 51.3967, -3.3433, 220},
	{"EGGD", "Bristol", 51.3827, -2.7191, 622},
	{"EGGP", "Liverpool John Lennon", 53.3336, -2.8497, 80},
	{"EGGW", "London Luton", 51.8747, -0.3683, 526},
	{"EGHH", "Bournemouth", 50.7800, -1.8425, 38},
	{"EGHI", "Southampton", 50.9503, -1.3568, 44},
	{"EGHR", "Chichester/Goodwood", 50.8594, -0.7592, 110},
	{"EGKB", "London Biggin Hill", 51.3308, 0.0325, 598},
	{"EGKK", "London Gatwick", 51.1481, -0.1903, 202},
	{"EGLC", "London City", 51.5053, 0.0553, 19},
	{"EGLF", "Farnborough", 51.2758, -0.7763, 238},
	{"EGLL", "London Heathrow", 51.4775, -0.4614, 83},
	{"EGLM", "White Waltham", 51.5008, -0.7744, 131},
	{"EGMC", "London Southend", 51.5714, 0.6956, 49},
	{"EGNM", "Leeds Bradford", 53.8659, -1.6606, 681},
	{"EGNT", "Newcastle", 55.0375, -1.6917, 266},
	{"EGNX", "East Midlands", 52.8311, -1.3281, 306},
	{"EGPD", "Aberdeen", 57.2019, -2.1978, 215},
	{"EGPF", "Glasgow", 55.8719, -4.4331, 26},
	{"EGPH", "Edinburgh", 55.9500, -3.3725, 135},
	{"EGSC", "Cambridge", 52.2050, 0.1750, 47},
	{"EGSS", "London Stansted", 51.8850, 0.2350, 348},
	{"EGTE", "Exeter", 50.7344, -3.4139, 102},
	{"EGTF", "Fairoaks", 51.3481, -0.5589, 80},
	{"EGTK", "Oxford", 51.8369, -1.3200, 270},
}

// Catalogue is an immutable set of aerodromes keyed by ICAO code.
type Catalogue struct {
	byICAO  map[string]Aerodrome
	ordered []Aerodrome
}

// NewCatalogue indexes list. Later duplicates replace earlier ones.
func NewCatalogue(list []Aerodrome) *Catalogue {
	c := &Catalogue{byICAO: make(map[string]Aerodrome, len(list))}
	for _, a := range list {
		a.ICAO = strings.ToUpper(a.ICAO)
		c.byICAO[a.ICAO] = a
	}
	for _, a := range c.byICAO {
		c.ordered = append(c.ordered, a)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ICAO < c.ordered[j].ICAO })
	return c
}

// DefaultCatalogue returns the built-in UK aerodromes.
func DefaultCatalogue() *Catalogue {
	return NewCatalogue(ukAerodromes)
}

// NormaliseICAO upper-cases code and checks it is four letters.
func NormaliseICAO(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !icaoPattern.MatchString(code) {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidICAO,
			"ICAO code must be four letters", nil, map[string]any{"icao": code})
	}
	return code, nil
}

// Lookup finds an aerodrome by ICAO code, ignoring case.
func (c *Catalogue) Lookup(code string) (Aerodrome, error) {
	icao, err := NormaliseICAO(code)
	if err != nil {
		return Aerodrome{}, err
	}
	a, ok := c.byICAO[icao]
	if !ok {
		return Aerodrome{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundAerodrome,
			"aerodrome not in catalogue", nil, map[string]any{"icao": icao})
	}
	return a, nil
}

// All returns the catalogue sorted by ICAO code.
func (c *Catalogue) All() []Aerodrome {
	out := make([]Aerodrome, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Len returns the number of aerodromes.
func (c *Catalogue) Len() int { return len(c.ordered) }
