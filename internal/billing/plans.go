// Package billing provides the plan catalogue and the API key to plan table.
package billing

import (
	"strings"

	"skycheck/internal/types"
)

// Plan describes a daily call quota tier. MonthlyPrice is in pence and is nil
// for plans that are not sold.
type Plan struct {
	ID           types.PlanID `json:"id"`
	CallsPerDay  int          `json:"calls_per_day"`
	MonthlyPrice *int         `json:"monthly_price_pence,omitempty"`
}

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// Get returns the plan for the given id. Unknown ids return the Free
	// plan so a misconfigured key never grants more than the minimum.
	Get(id types.PlanID) Plan
	// All returns every plan, cheapest first.
	All() []Plan
}

// staticPlanRegistry is a compile-time plan registry backed by an ordered slice.
type staticPlanRegistry struct {
	plans []Plan
	byID  map[types.PlanID]Plan
}

func pence(v int) *int { return &v }

// planDefaults is the fixed plan table.
//
//	| Plan       | Calls/Day | Monthly   |
//	|------------|-----------|-----------|
//	| Free       | 200       | -         |
//	| Hobby      | 2,000     | £9.00     |
//	| Pro        | 10,000    | £29.00    |
//	| Business   | 30,000    | £79.00    |
//	| Enterprise | 72,000    | £199.00   |
var planDefaults = []Plan{
	{ID: types.PlanFree, CallsPerDay: 200},
	{ID: types.PlanHobby, CallsPerDay: 2000, MonthlyPrice: pence(900)},
	{ID: types.PlanPro, CallsPerDay: 10000, MonthlyPrice: pence(2900)},
	{ID: types.PlanBusiness, CallsPerDay: 30000, MonthlyPrice: pence(7900)},
	{ID: types.PlanEnterprise, CallsPerDay: 72000, MonthlyPrice: pence(19900)},
}

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// table. No database or external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	plans := make([]Plan, len(planDefaults))
	byID := make(map[types.PlanID]Plan, len(planDefaults))
	for i, p := range planDefaults {
		if p.MonthlyPrice != nil {
			p.MonthlyPrice = pence(*p.MonthlyPrice)
		}
		plans[i] = p
		byID[p.ID] = p
	}
	return &staticPlanRegistry{plans: plans, byID: byID}
}

// Get returns the plan for id, or Free when id is unknown.
func (r *staticPlanRegistry) Get(id types.PlanID) Plan {
	if p, ok := r.byID[id]; ok {
		return p
	}
	return r.byID[types.PlanFree]
}

// All returns a copy of the ordered plan list.
func (r *staticPlanRegistry) All() []Plan {
	out := make([]Plan, len(r.plans))
	copy(out, r.plans)
	return out
}

// IsKnownPlan reports whether id names a plan in the fixed table.
func IsKnownPlan(id types.PlanID) bool {
	for _, p := range planDefaults {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ParseAPIKeyPlans parses "key:plan" entries. Entries without a colon, with
// an empty key or plan, or naming an unknown plan are dropped. When a key
// appears twice the last entry wins.
func ParseAPIKeyPlans(entries []string) map[string]types.PlanID {
	out := make(map[string]types.PlanID, len(entries))
	for _, entry := range entries {
		key, plan, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		id := types.PlanID(strings.ToLower(strings.TrimSpace(plan)))
		if key == "" || id == "" || !IsKnownPlan(id) {
			continue
		}
		out[key] = id
	}
	return out
}

// KeyPlanTable is the read-only API key to plan mapping built at startup.
type KeyPlanTable struct {
	plans map[string]types.PlanID
}

// NewKeyPlanTable parses entries into an immutable table.
func NewKeyPlanTable(entries []string) *KeyPlanTable {
	return &KeyPlanTable{plans: ParseAPIKeyPlans(entries)}
}

// Lookup returns the plan mapped to key.
func (t *KeyPlanTable) Lookup(key string) (types.PlanID, bool) {
	if t == nil || key == "" {
		return "", false
	}
	id, ok := t.plans[key]
	return id, ok
}

// Len returns the number of configured keys.
func (t *KeyPlanTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.plans)
}
