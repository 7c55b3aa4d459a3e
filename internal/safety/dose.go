package safety

import "fmt"

// DoseValidator evaluates a single proposed order against the rule table
// and the patient profile.
type DoseValidator struct {
	table *RuleTable
}

// NewDoseValidator creates a validator over an immutable rule table.
func NewDoseValidator(table *RuleTable) *DoseValidator {
	return &DoseValidator{table: table}
}

// Evaluate checks one order and returns a complete Verdict. Every
// applicable check runs and accumulates; the caller gets the full list of
// violations in one round trip. The only short-circuit is a non-positive
// dose, which makes the remaining drug-specific checks meaningless.
func (v *DoseValidator) Evaluate(order ProposedOrder, profile PatientSafetyProfile) Verdict {
	verdict := newVerdict()

	rule, known := v.table.Lookup(order.MedicationName)
	if !known {
		verdict.addWarning(fmt.Sprintf("%s: no safety data, manual review advised", order.MedicationName))
	}

	if order.DoseMg <= 0 {
		verdict.addError(fmt.Sprintf("Dose must be positive, got %gmg", order.DoseMg))
	} else if known {
		v.checkDose(order, profile, rule, &verdict)
	}

	// Duration is gated independently of drug identity.
	if !AllowedDuration(order.DurationDays) {
		verdict.addError(fmt.Sprintf("Duration (%d days) is not an accepted therapy length", order.DurationDays))
	}

	return verdict
}

func (v *DoseValidator) checkDose(order ProposedOrder, profile PatientSafetyProfile, rule MedicationRule, verdict *Verdict) {
	if rule.MaxSingleDoseMg > 0 && order.DoseMg > rule.MaxSingleDoseMg {
		verdict.addError(fmt.Sprintf("Single dose (%gmg) exceeds maximum (%gmg)",
			order.DoseMg, rule.MaxSingleDoseMg))
	}

	daily := order.DoseMg * DailyMultiplier(order.Frequency)
	if rule.MaxDailyDoseMg > 0 && daily > rule.MaxDailyDoseMg {
		verdict.addError(fmt.Sprintf("Daily dose (%gmg) exceeds maximum (%gmg)",
			daily, rule.MaxDailyDoseMg))
	}

	if profile.AgeYears < rule.PediatricMinAgeYears {
		verdict.addError(fmt.Sprintf("%s is not approved under age %d (patient is %d)",
			order.MedicationName, rule.PediatricMinAgeYears, profile.AgeYears))
	}

	if profile.AgeYears < 18 && profile.WeightKg > 0 && rule.PediatricDose != nil {
		recommended := rule.PediatricDose(profile.AgeYears, profile.WeightKg)
		if order.DoseMg > recommended {
			verdict.addError(fmt.Sprintf("Dose (%gmg) exceeds pediatric recommendation (%gmg) for %gkg patient",
				order.DoseMg, recommended, profile.WeightKg))
		}
	}
}
