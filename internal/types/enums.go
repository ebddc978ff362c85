package types

// PlanID identifies a daily call quota tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanHobby      PlanID = "hobby"
	PlanPro        PlanID = "pro"
	PlanBusiness   PlanID = "business"
	PlanEnterprise PlanID = "enterprise"
)

// AircraftClass selects the threshold table used for a flight decision.
type AircraftClass string

const (
	AircraftJet        AircraftClass = "jet"
	AircraftLight      AircraftClass = "light"
	AircraftMicrolight AircraftClass = "microlight"
)

// IsValid reports whether the class is one of the known aircraft classes.
func (c AircraftClass) IsValid() bool {
	switch c {
	case AircraftJet, AircraftLight, AircraftMicrolight:
		return true
	}
	return false
}

// Verdict is the three-level outcome of a flight suitability check.
type Verdict string

const (
	VerdictGood     Verdict = "good"
	VerdictMarginal Verdict = "marginal"
	VerdictPoor     Verdict = "poor"
)

// Criterion names one of the five weather dimensions feeding a decision.
type Criterion string

const (
	CriterionWind          Criterion = "wind"
	CriterionVisibility    Criterion = "visibility"
	CriterionCloudBase     Criterion = "cloud_base"
	CriterionCloudCover    Criterion = "cloud_cover"
	CriterionPrecipitation Criterion = "precipitation"
)

// AllCriteria lists the criteria in evaluation order.
var AllCriteria = []Criterion{
	CriterionWind,
	CriterionVisibility,
	CriterionCloudBase,
	CriterionCloudCover,
	CriterionPrecipitation,
}

// WeatherSource identifies where a snapshot came from.
type WeatherSource string

const (
	SourceForecast WeatherSource = "forecast"
	SourceMETAR    WeatherSource = "metar"
	SourceManual   WeatherSource = "manual"
)
