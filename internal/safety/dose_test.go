package safety

import (
	"reflect"
	"testing"
)

func adult() PatientSafetyProfile {
	return PatientSafetyProfile{AgeYears: 30, WeightKg: 70}
}

func TestEvaluateUnknownMedication(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "obscuromycin",
		DoseMg:         100,
		Frequency:      FreqOnceDaily,
		DurationDays:   7,
	}, adult())

	if !verdict.Valid {
		t.Fatalf("unknown medication should be valid, got errors %v", verdict.Errors)
	}
	if len(verdict.Warnings) == 0 {
		t.Error("expected manual-review warning for unknown medication")
	}
}

func TestEvaluateSingleDoseCeiling(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol",
		DoseMg:         1500,
		Frequency:      FreqOnceDaily,
		DurationDays:   5,
	}, adult())

	if verdict.Valid {
		t.Fatal("expected invalid verdict")
	}
	want := "Single dose (1500mg) exceeds maximum (1000mg)"
	if !containsString(verdict.Errors, want) {
		t.Errorf("errors %v missing %q", verdict.Errors, want)
	}
}

func TestEvaluateDailyDoseCeiling(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	// 1000mg QID = 4000mg/day is at the limit; Q6H is also x4.
	ok := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol", DoseMg: 1000, Frequency: FreqFourTimesDaily, DurationDays: 5,
	}, adult())
	if !ok.Valid {
		t.Errorf("4000mg/day should pass, got %v", ok.Errors)
	}

	// Unknown frequency defaults to multiplier 1.
	unknown := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol", DoseMg: 900, Frequency: "Q99H", DurationDays: 5,
	}, adult())
	if !unknown.Valid {
		t.Errorf("unknown frequency should use multiplier 1, got %v", unknown.Errors)
	}
}

func TestEvaluatePediatricWeightCeiling(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	// 10kg five-year-old: recommended = min(15*10, 500) = 150mg.
	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol",
		DoseMg:         250,
		Frequency:      FreqThreeTimesDaily,
		DurationDays:   3,
	}, PatientSafetyProfile{AgeYears: 5, WeightKg: 10})

	if verdict.Valid {
		t.Fatal("250mg should exceed the 150mg pediatric recommendation")
	}
	want := "Dose (250mg) exceeds pediatric recommendation (150mg) for 10kg patient"
	if !containsString(verdict.Errors, want) {
		t.Errorf("errors %v missing %q", verdict.Errors, want)
	}
}

func TestEvaluateHardAgeGate(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "aspirin", DoseMg: 300, Frequency: FreqOnceDaily, DurationDays: 3,
	}, PatientSafetyProfile{AgeYears: 8, WeightKg: 25})

	if verdict.Valid {
		t.Fatal("aspirin should be rejected under minimum age")
	}
}

func TestEvaluateDurationIndependent(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	for _, days := range []int{0, 2, 4, 6, 8, 9, 11, 15, 45, -1} {
		verdict := v.Evaluate(ProposedOrder{
			MedicationName: "paracetamol", DoseMg: 500, Frequency: FreqTwiceDaily, DurationDays: days,
		}, adult())
		if verdict.Valid {
			t.Errorf("duration %d should be rejected", days)
		}
	}

	for _, days := range []int{1, 3, 5, 7, 10, 14, 21, 30} {
		verdict := v.Evaluate(ProposedOrder{
			MedicationName: "paracetamol", DoseMg: 500, Frequency: FreqTwiceDaily, DurationDays: days,
		}, adult())
		if !verdict.Valid {
			t.Errorf("duration %d should pass, got %v", days, verdict.Errors)
		}
	}

	// Duration is still checked for unknown drugs.
	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "obscuromycin", DoseMg: 100, Frequency: FreqOnceDaily, DurationDays: 6,
	}, adult())
	if verdict.Valid {
		t.Error("duration gate must apply regardless of drug identity")
	}
}

func TestEvaluateNonPositiveDoseShortCircuitsDrugChecks(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol", DoseMg: -5, Frequency: FreqFourTimesDaily, DurationDays: 6,
	}, PatientSafetyProfile{AgeYears: 5, WeightKg: 10})

	if verdict.Valid {
		t.Fatal("negative dose must be rejected")
	}
	// Dose error plus the independent duration error, but no ceiling errors
	// derived from a nonsense dose.
	if len(verdict.Errors) != 2 {
		t.Errorf("expected dose + duration errors only, got %v", verdict.Errors)
	}
}

func TestEvaluateAccumulatesAllViolations(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())

	// Over single ceiling, over daily ceiling, under minimum age, over the
	// pediatric recommendation, and an off-list duration, all at once.
	verdict := v.Evaluate(ProposedOrder{
		MedicationName: "aspirin", DoseMg: 1200, Frequency: FreqFourTimesDaily, DurationDays: 4,
	}, PatientSafetyProfile{AgeYears: 8, WeightKg: 25})

	if verdict.Valid {
		t.Fatal("expected invalid verdict")
	}
	if len(verdict.Errors) < 4 {
		t.Errorf("expected full violation list, got %v", verdict.Errors)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())
	order := ProposedOrder{MedicationName: "Paracetamol", DoseMg: 1500, Frequency: FreqFourTimesDaily, DurationDays: 6}
	profile := PatientSafetyProfile{AgeYears: 5, WeightKg: 10}

	first := v.Evaluate(order, profile)
	for i := 0; i < 10; i++ {
		again := v.Evaluate(order, profile)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("evaluation is not deterministic: %v vs %v", first, again)
		}
	}
}

func TestEvaluateMonotonicity(t *testing.T) {
	v := NewDoseValidator(DefaultRuleTable())
	profile := adult()

	base := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol", DoseMg: 1500, Frequency: FreqOnceDaily, DurationDays: 5,
	}, profile)

	// Violating one more rule (duration) must keep every prior error.
	worse := v.Evaluate(ProposedOrder{
		MedicationName: "paracetamol", DoseMg: 1500, Frequency: FreqOnceDaily, DurationDays: 6,
	}, profile)

	for _, e := range base.Errors {
		if !containsString(worse.Errors, e) {
			t.Errorf("error %q disappeared when another rule was violated", e)
		}
	}
	if len(worse.Errors) <= len(base.Errors) {
		t.Error("expected additional duration error")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
