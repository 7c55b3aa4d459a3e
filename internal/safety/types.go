// Package safety implements the prescription safety-validation engine:
// dose limits, pediatric ceilings, duration gating, drug-drug interactions
// and drug-allergy matching. All evaluation is pure and in-memory; callers
// own persistence of accepted orders.
package safety

// FrequencyCode identifies how often a dose is taken.
type FrequencyCode string

const (
	FreqOnceDaily       FrequencyCode = "OD"
	FreqTwiceDaily      FrequencyCode = "BID"
	FreqThreeTimesDaily FrequencyCode = "TID"
	FreqFourTimesDaily  FrequencyCode = "QID"
	FreqEverySixHours   FrequencyCode = "Q6H"
	FreqEveryEightHours FrequencyCode = "Q8H"
	FreqAsNeeded        FrequencyCode = "PRN"
)

// frequencyMultipliers maps a frequency code to its daily-dose multiplier.
// Unknown codes fall back to 1.
var frequencyMultipliers = map[FrequencyCode]float64{
	FreqOnceDaily:       1,
	FreqTwiceDaily:      2,
	FreqThreeTimesDaily: 3,
	FreqFourTimesDaily:  4,
	FreqEverySixHours:   4,
	FreqEveryEightHours: 3,
	FreqAsNeeded:        1,
}

// DailyMultiplier returns the daily-dose multiplier for a frequency code.
func DailyMultiplier(f FrequencyCode) float64 {
	if m, ok := frequencyMultipliers[f]; ok {
		return m
	}
	return 1
}

// ProposedOrder is one medication order under evaluation. It exists only
// for the duration of a validation call.
type ProposedOrder struct {
	MedicationName string        `json:"medication_name"`
	DoseMg         float64       `json:"dose_mg"`
	Frequency      FrequencyCode `json:"frequency"`
	DurationDays   int           `json:"duration_days"`
	Route          string        `json:"route,omitempty"`
}

// AllergyRecord is one recorded drug allergy on the patient chart.
type AllergyRecord struct {
	AllergenName string `json:"allergen_name"`
	Severity     string `json:"severity"`
}

// PatientSafetyProfile is the read-only patient snapshot supplied by the
// caller. WeightKg of zero means unknown.
type PatientSafetyProfile struct {
	AgeYears            int             `json:"age_years"`
	WeightKg            float64         `json:"weight_kg"`
	ActiveDrugAllergies []AllergyRecord `json:"active_drug_allergies"`
}

// Verdict is the structured outcome for a single order. Errors block;
// warnings accompany success and are expected to be audit-logged.
type Verdict struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newVerdict() Verdict {
	return Verdict{Valid: true, Errors: []string{}, Warnings: []string{}}
}

func (v *Verdict) addError(msg string) {
	v.Valid = false
	v.Errors = append(v.Errors, msg)
}

func (v *Verdict) addWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}

// AllergyConflict pairs an ordered medication with a recorded allergen.
type AllergyConflict struct {
	DrugName     string `json:"drug_name"`
	AllergenName string `json:"allergen_name"`
	Severity     string `json:"severity"`
}

// Policy controls gate behavior that varies per deployment.
type Policy struct {
	// BlockOnAllergy fails the aggregate result when any allergy conflict
	// is found. Default is warn-only.
	BlockOnAllergy bool `json:"block_on_allergy"`
}

// GateResult is the aggregate outcome of one safety-gate pass.
type GateResult struct {
	Valid               bool              `json:"valid"`
	OrderVerdicts       []Verdict         `json:"order_verdicts"`
	InteractionWarnings []string          `json:"interaction_warnings"`
	AllergyConflicts    []AllergyConflict `json:"allergy_conflicts"`
}
