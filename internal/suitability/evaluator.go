// Package suitability classifies a weather snapshot into a good, marginal or
// poor flight decision for an aircraft class.
//
// Evaluation is pure: the result depends only on the snapshot, the class,
// the configured limits and the policy.
package suitability

import (
	"fmt"
	"math"

	"skycheck/internal/types"
)

// DefaultPoorMarginalCount is the number of marginal criteria that makes the
// overall verdict poor.
const DefaultPoorMarginalCount = 3

// Snapshot is the evaluator input in its native units.
type Snapshot struct {
	WindSpeed         float64        `json:"wind_speed"`
	WindUnit          WindUnit       `json:"wind_unit,omitempty"`
	Visibility        float64        `json:"visibility"`
	VisibilityUnit    VisibilityUnit `json:"visibility_unit,omitempty"`
	CloudCoverPercent float64        `json:"cloud_cover_percent"`
	CloudBaseFeet     float64        `json:"cloud_base_feet"`
	PrecipitationRate float64        `json:"precipitation_rate"`
}

// Policy holds the aggregation rule.
type Policy struct {
	// PoorMarginalCount marginal criteria or more make the overall verdict poor.
	PoorMarginalCount int
}

// DefaultPolicy returns the standard aggregation policy.
func DefaultPolicy() Policy {
	return Policy{PoorMarginalCount: DefaultPoorMarginalCount}
}

// CriterionResult is the classification of one criterion.
type CriterionResult struct {
	Status    types.Verdict `json:"status"`
	Value     float64       `json:"value"`
	Unit      string        `json:"unit"`
	Threshold string        `json:"threshold"`
}

// Overall is the aggregated verdict with its tallies.
type Overall struct {
	Verdict  types.Verdict `json:"verdict"`
	Good     int           `json:"good"`
	Marginal int           `json:"marginal"`
	Poor     int           `json:"poor"`
}

// Decision is the evaluator output.
type Decision struct {
	AircraftClass types.AircraftClass                 `json:"aircraft_class"`
	Criteria      map[types.Criterion]CriterionResult `json:"criteria"`
	Overall       Overall                             `json:"overall"`
	Reasoning     string                              `json:"reasoning"`
}

// Evaluator applies per-class limits and a Policy. It is immutable and safe
// for concurrent use.
type Evaluator struct {
	limits map[types.AircraftClass]Limits
	policy Policy
}

// NewEvaluator copies limits; nil selects DefaultLimits. A policy count below
// 1 selects DefaultPoorMarginalCount.
func NewEvaluator(limits map[types.AircraftClass]Limits, policy Policy) *Evaluator {
	if limits == nil {
		limits = DefaultLimits()
	}
	copied := make(map[types.AircraftClass]Limits, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	if policy.PoorMarginalCount < 1 {
		policy.PoorMarginalCount = DefaultPoorMarginalCount
	}
	return &Evaluator{limits: copied, policy: policy}
}

// Policy returns the aggregation policy in use.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Limits returns the thresholds for class.
func (e *Evaluator) Limits(class types.AircraftClass) (Limits, bool) {
	l, ok := e.limits[class]
	return l, ok
}

// Evaluate classifies s for class. Only an unknown class or unit is an
// error; any numeric value, including negative or non-finite, yields a
// verdict.
func (e *Evaluator) Evaluate(s Snapshot, class types.AircraftClass) (Decision, error) {
	limits, ok := e.limits[class]
	if !ok {
		return Decision{}, types.NewAppError(types.ErrCodeValidationInvalidAircraft,
			fmt.Sprintf("unknown aircraft class %q", class), nil)
	}

	wind, err := ToKnots(s.WindSpeed, s.WindUnit)
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeValidationInvalidUnit, err.Error(), nil)
	}
	vis, err := ToMetres(s.Visibility, s.VisibilityUnit)
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeValidationInvalidUnit, err.Error(), nil)
	}

	values := map[types.Criterion]float64{
		types.CriterionWind:          wind,
		types.CriterionVisibility:    vis,
		types.CriterionCloudBase:     s.CloudBaseFeet,
		types.CriterionCloudCover:    s.CloudCoverPercent,
		types.CriterionPrecipitation: s.PrecipitationRate,
	}

	d := Decision{
		AircraftClass: class,
		Criteria:      make(map[types.Criterion]CriterionResult, len(types.AllCriteria)),
	}
	for _, c := range types.AllCriteria {
		t := limits.For(c)
		status := Classify(values[c], t, DirectionOf(c))
		d.Criteria[c] = CriterionResult{
			Status:    status,
			Value:     round2(values[c]),
			Unit:      criteria[c].unit,
			Threshold: describe(c, t),
		}
		switch status {
		case types.VerdictGood:
			d.Overall.Good++
		case types.VerdictMarginal:
			d.Overall.Marginal++
		case types.VerdictPoor:
			d.Overall.Poor++
		}
	}

	d.Overall.Verdict = e.aggregate(d.Overall)
	d.Reasoning = e.reasoning(d.Overall, class)
	return d, nil
}

// Classify places v against t. Non-finite values are poor.
func Classify(v float64, t Threshold, dir Direction) types.Verdict {
	if !isFinite(v) {
		return types.VerdictPoor
	}
	if dir == HigherIsBetter {
		switch {
		case v >= t.Good:
			return types.VerdictGood
		case v < t.Poor:
			return types.VerdictPoor
		}
		return types.VerdictMarginal
	}
	switch {
	case v >= t.Poor:
		return types.VerdictPoor
	case v < t.Good:
		return types.VerdictGood
	}
	return types.VerdictMarginal
}

func (e *Evaluator) aggregate(o Overall) types.Verdict {
	switch {
	case o.Poor > 0 || o.Marginal >= e.policy.PoorMarginalCount:
		return types.VerdictPoor
	case o.Marginal > 0:
		return types.VerdictMarginal
	}
	return types.VerdictGood
}

func (e *Evaluator) reasoning(o Overall, class types.AircraftClass) string {
	counts := fmt.Sprintf("%d good, %d marginal, %d poor", o.Good, o.Marginal, o.Poor)
	switch {
	case o.Poor > 0:
		return fmt.Sprintf("%s. At least one criterion is poor: flight not recommended for %s aircraft.", counts, class)
	case o.Marginal >= e.policy.PoorMarginalCount:
		return fmt.Sprintf("%s. %d marginal criteria reach the limit of %d: flight not recommended for %s aircraft.",
			counts, o.Marginal, e.policy.PoorMarginalCount, class)
	case o.Marginal > 0:
		return fmt.Sprintf("%s. Conditions are marginal for %s aircraft: proceed with caution.", counts, class)
	}
	return fmt.Sprintf("%s. All criteria are within limits for %s aircraft.", counts, class)
}

func round2(v float64) float64 {
	if !isFinite(v) {
		return v
	}
	return math.Round(v*100) / 100
}
