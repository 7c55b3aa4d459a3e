package safety

import (
	"strings"
)

// PediatricDoseFn computes the recommended pediatric single dose in mg for
// a given age and weight.
type PediatricDoseFn func(ageYears int, weightKg float64) float64

// MedicationRule holds the dosing limits for one medication. Rules are
// immutable once the table is built.
type MedicationRule struct {
	Name                 string
	MaxSingleDoseMg      float64
	MaxDailyDoseMg       float64
	PediatricMinAgeYears int
	PediatricDose        PediatricDoseFn
}

// InteractionPair is one entry in the fixed drug-drug interaction table.
// Matching is substring containment over normalized order names, on both
// members of the pair.
type InteractionPair struct {
	DrugA   string
	DrugB   string
	Warning string
}

// allowedDurations is the fixed set of accepted therapy lengths in days.
var allowedDurations = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 10: true, 14: true, 21: true, 30: true,
}

// AllowedDuration reports whether d is an accepted therapy length.
func AllowedDuration(d int) bool {
	return allowedDurations[d]
}

// RuleTable is the static safety configuration: dosing rules keyed by
// case-insensitive medication name plus the interaction pair list. It is
// built once at startup and shared read-only across requests; no locking
// is needed after construction.
type RuleTable struct {
	rules        map[string]MedicationRule
	interactions []InteractionPair
}

// NewRuleTable builds a table from explicit rules and interaction pairs.
// Pediatric formulas are clamped so their output can never exceed the
// adult single-dose ceiling, even for misconfigured inputs.
func NewRuleTable(rules []MedicationRule, interactions []InteractionPair) *RuleTable {
	t := &RuleTable{
		rules:        make(map[string]MedicationRule, len(rules)),
		interactions: interactions,
	}
	for _, r := range rules {
		if fn := r.PediatricDose; fn != nil {
			ceiling := r.MaxSingleDoseMg
			r.PediatricDose = func(age int, weight float64) float64 {
				d := fn(age, weight)
				if ceiling > 0 && d > ceiling {
					return ceiling
				}
				return d
			}
		}
		t.rules[normalizeName(r.Name)] = r
	}
	return t
}

// Lookup returns the rule for a medication name, if one is configured.
func (t *RuleTable) Lookup(name string) (MedicationRule, bool) {
	r, ok := t.rules[normalizeName(name)]
	return r, ok
}

// Interactions returns the interaction pair list in table order.
func (t *RuleTable) Interactions() []InteractionPair {
	return t.interactions
}

// weightBased builds a mg-per-kg pediatric formula capped at capMg.
func weightBased(mgPerKg, capMg float64) PediatricDoseFn {
	return func(_ int, weightKg float64) float64 {
		d := mgPerKg * weightKg
		if d > capMg {
			return capMg
		}
		return d
	}
}

// DefaultRules returns the built-in medication rule set.
func DefaultRules() []MedicationRule {
	return []MedicationRule{
		{
			Name:            "paracetamol",
			MaxSingleDoseMg: 1000,
			MaxDailyDoseMg:  4000,
			PediatricDose:   weightBased(15, 500),
		},
		{
			Name:            "ibuprofen",
			MaxSingleDoseMg: 800,
			MaxDailyDoseMg:  3200,
			// Not licensed under six months.
			PediatricMinAgeYears: 1,
			PediatricDose:        weightBased(10, 400),
		},
		{
			Name:                 "aspirin",
			MaxSingleDoseMg:      1000,
			MaxDailyDoseMg:       4000,
			PediatricMinAgeYears: 16, // Reye's syndrome risk
		},
		{
			Name:            "amoxicillin",
			MaxSingleDoseMg: 1000,
			MaxDailyDoseMg:  3000,
			PediatricDose:   weightBased(25, 875),
		},
		{
			Name:            "cetirizine",
			MaxSingleDoseMg: 10,
			MaxDailyDoseMg:  10,
			PediatricDose:   weightBased(0.25, 5),
		},
		{
			Name:                 "warfarin",
			MaxSingleDoseMg:      10,
			MaxDailyDoseMg:       10,
			PediatricMinAgeYears: 18,
		},
		{
			Name:                 "methotrexate",
			MaxSingleDoseMg:      25,
			MaxDailyDoseMg:       25,
			PediatricMinAgeYears: 18,
		},
		{
			Name:                 "metformin",
			MaxSingleDoseMg:      1000,
			MaxDailyDoseMg:       2550,
			PediatricMinAgeYears: 10,
		},
	}
}

// DefaultInteractions returns the built-in interaction pair table. Order
// is significant: warnings are emitted in table order.
func DefaultInteractions() []InteractionPair {
	return []InteractionPair{
		{"warfarin", "aspirin", "warfarin + aspirin: increased bleeding risk"},
		{"warfarin", "ibuprofen", "warfarin + ibuprofen: increased bleeding risk"},
		{"methotrexate", "ibuprofen", "methotrexate + ibuprofen: reduced methotrexate clearance, toxicity risk"},
		{"methotrexate", "aspirin", "methotrexate + aspirin: reduced methotrexate clearance, toxicity risk"},
		{"ibuprofen", "aspirin", "ibuprofen + aspirin: reduced antiplatelet effect, GI bleeding risk"},
		{"paracetamol", "ibuprofen", "paracetamol + ibuprofen: combined use requires dosing review"},
	}
}

// DefaultRuleTable builds the table every binary ships with.
func DefaultRuleTable() *RuleTable {
	return NewRuleTable(DefaultRules(), DefaultInteractions())
}

// normalizeName lowercases and trims a medication name for table lookup
// and interaction matching.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
