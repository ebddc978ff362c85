package weather

import (
	"math"
	"strings"

	"skycheck/internal/external"
	"skycheck/internal/suitability"
	"skycheck/internal/types"
)

// ClearSkyBaseFt is used as the cloud base when no layer is reported.
const ClearSkyBaseFt = 12000

// Dry adiabatic spread rule: the base rises 1000 ft per 2.5 C of
// temperature/dew point spread.
const spreadPerThousandFt = 2.5

// CloudBaseFromSpread estimates the convective cloud base in feet.
func CloudBaseFromSpread(tempC, dewPointC float64) float64 {
	spread := math.Max(0, tempC-dewPointC)
	return spread / spreadPerThousandFt * 1000
}

// SnapshotFromForecast builds evaluator input from one forecast hour.
// Missing precipitation reads as dry; any other missing field is an error.
func SnapshotFromForecast(h external.ForecastHour) (suitability.Snapshot, error) {
	var missing []string
	need := func(name string, v *float64) float64 {
		if v == nil {
			missing = append(missing, name)
			return 0
		}
		return *v
	}
	wind := need("wind_speed", h.WindSpeedKMH)
	vis := need("visibility", h.VisibilityM)
	cover := need("cloud_cover", h.CloudCoverPct)
	temp := need("temperature", h.TemperatureC)
	dew := need("dew_point", h.DewPointC)
	if len(missing) > 0 {
		return suitability.Snapshot{}, types.NewAppErrorWithDetails(types.ErrCodeUpstreamForecast,
			"forecast hour is incomplete", nil, map[string]any{"missing": missing})
	}

	precip := 0.0
	if h.PrecipitationMM != nil {
		precip = *h.PrecipitationMM
	}
	return suitability.Snapshot{
		WindSpeed:         wind,
		WindUnit:          suitability.WindKMH,
		Visibility:        vis,
		VisibilityUnit:    suitability.VisibilityMetres,
		CloudCoverPercent: cover,
		CloudBaseFeet:     CloudBaseFromSpread(temp, dew),
		PrecipitationRate: precip,
	}, nil
}

// SnapshotFromMETAR builds evaluator input from an observation.
func SnapshotFromMETAR(m *external.METAR) (suitability.Snapshot, error) {
	if m == nil || m.VisibilitySM == nil {
		return suitability.Snapshot{}, types.NewAppError(types.ErrCodeUpstreamMETAR,
			"METAR has no visibility", nil)
	}
	base, cover := cloudFromLayers(m.Clouds)
	return suitability.Snapshot{
		WindSpeed:         m.WindSpeedKt,
		WindUnit:          suitability.WindKnots,
		Visibility:        *m.VisibilitySM,
		VisibilityUnit:    suitability.VisibilityStatuteMile,
		CloudCoverPercent: cover,
		CloudBaseFeet:     base,
		PrecipitationRate: PrecipitationFromWx(m.WxString),
	}, nil
}

// coverPercent maps METAR cover codes to the midpoint of their octas.
var coverPercent = map[string]float64{
	"SKC": 0, "CLR": 0, "NSC": 0, "NCD": 0, "CAVOK": 0,
	"FEW": 25,  // 1-2 octas
	"SCT": 50,  // 3-4 octas
	"BKN": 75,  // 5-7 octas
	"OVC": 100, // 8 octas
	"OVX": 100,
	"VV":  100,
}

// cloudFromLayers returns the lowest BKN/OVC base (or the lowest base when
// there is no ceiling) and the greatest cover.
func cloudFromLayers(layers []external.CloudLayer) (baseFt, coverPct float64) {
	ceiling, lowest := math.Inf(1), math.Inf(1)
	for _, l := range layers {
		code := strings.ToUpper(l.Cover)
		coverPct = math.Max(coverPct, coverPercent[code])
		if l.BaseFt == nil {
			continue
		}
		b := float64(*l.BaseFt)
		lowest = math.Min(lowest, b)
		if code == "BKN" || code == "OVC" || code == "OVX" || code == "VV" {
			ceiling = math.Min(ceiling, b)
		}
	}
	switch {
	case !math.IsInf(ceiling, 1):
		return ceiling, coverPct
	case !math.IsInf(lowest, 1):
		return lowest, coverPct
	default:
		return ClearSkyBaseFt, coverPct
	}
}

// Nominal moderate rates in mm/h per precipitation code.
var precipRate = map[string]float64{
	"DZ": 0.5,
	"RA": 2.5,
	"SN": 1.5,
	"SG": 0.5,
	"PL": 2.5,
	"GS": 2.5,
	"GR": 5,
	"UP": 1,
}

// PrecipitationFromWx infers a precipitation rate from a METAR weather
// string such as "-RA BR" or "+SHRA". Light halves and heavy triples the
// nominal rate; the wettest group wins. Vicinity groups are ignored.
func PrecipitationFromWx(wx string) float64 {
	var rate float64
	for _, group := range strings.Fields(strings.ToUpper(wx)) {
		factor := 1.0
		switch {
		case strings.HasPrefix(group, "-"):
			factor, group = 0.5, group[1:]
		case strings.HasPrefix(group, "+"):
			factor, group = 3, group[1:]
		}
		if strings.HasPrefix(group, "VC") {
			continue
		}
		group = strings.TrimPrefix(group, "SH")
		group = strings.TrimPrefix(group, "TS")
		group = strings.TrimPrefix(group, "FZ")

		var r float64
		for i := 0; i+2 <= len(group); i += 2 {
			r = math.Max(r, precipRate[group[i:i+2]])
		}
		if r == 0 && group == "" {
			// bare SH or TS: showers of unspecified type
			r = precipRate["RA"]
		}
		rate = math.Max(rate, r*factor)
	}
	return rate
}
