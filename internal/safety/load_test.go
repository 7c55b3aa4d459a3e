package safety

import (
	"strings"
	"testing"
)

func TestLoadRules(t *testing.T) {
	input := `[
		{"name": "Naproxen", "max_single_dose_mg": 500, "max_daily_dose_mg": 1000,
		 "pediatric_min_age_years": 12, "pediatric_mg_per_kg": 5, "pediatric_cap_mg": 250}
	]`

	rules, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}

	r := rules[0]
	if r.Name != "Naproxen" || r.MaxSingleDoseMg != 500 || r.PediatricMinAgeYears != 12 {
		t.Errorf("rule = %+v", r)
	}
	if r.PediatricDose == nil {
		t.Fatal("PediatricDose is nil")
	}
	if got := r.PediatricDose(8, 30); got != 150 {
		t.Errorf("PediatricDose(8, 30) = %g, want 150", got)
	}
	if got := r.PediatricDose(8, 100); got != 250 {
		t.Errorf("PediatricDose(8, 100) = %g, want cap 250", got)
	}
}

func TestLoadRulesCapDefaultsToSingleDoseMax(t *testing.T) {
	input := `[{"name": "x", "max_single_dose_mg": 400, "pediatric_mg_per_kg": 10}]`

	rules, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got := rules[0].PediatricDose(10, 80); got != 400 {
		t.Errorf("PediatricDose(10, 80) = %g, want 400", got)
	}
}

func TestLoadRulesRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"malformed": `{`,
		"empty":     `[]`,
		"unnamed":   `[{"max_single_dose_mg": 100}]`,
	}
	for name, input := range cases {
		if _, err := LoadRules(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
