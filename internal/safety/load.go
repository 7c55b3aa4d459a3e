package safety

import (
	"encoding/json"
	"fmt"
	"io"
)

// ruleSpec is the JSON form of a medication rule. Pediatric dosing is
// expressed as mg-per-kg with a cap, the only formula shape a config file
// can carry.
type ruleSpec struct {
	Name                 string  `json:"name"`
	MaxSingleDoseMg      float64 `json:"max_single_dose_mg"`
	MaxDailyDoseMg       float64 `json:"max_daily_dose_mg"`
	PediatricMinAgeYears int     `json:"pediatric_min_age_years"`
	PediatricMgPerKg     float64 `json:"pediatric_mg_per_kg"`
	PediatricCapMg       float64 `json:"pediatric_cap_mg"`
}

// LoadRules reads a JSON rule list, overriding the built-in table. The
// interaction pair table is not overridable.
func LoadRules(r io.Reader) ([]MedicationRule, error) {
	var specs []ruleSpec
	if err := json.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("rules file is empty")
	}

	rules := make([]MedicationRule, 0, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		rule := MedicationRule{
			Name:                 s.Name,
			MaxSingleDoseMg:      s.MaxSingleDoseMg,
			MaxDailyDoseMg:       s.MaxDailyDoseMg,
			PediatricMinAgeYears: s.PediatricMinAgeYears,
		}
		if s.PediatricMgPerKg > 0 {
			capMg := s.PediatricCapMg
			if capMg <= 0 {
				capMg = s.MaxSingleDoseMg
			}
			rule.PediatricDose = weightBased(s.PediatricMgPerKg, capMg)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
