package safety

import (
	"github.com/clinicore/go-clinic-core/internal/audit"
)

// Gate composes the dose validator, interaction checker and allergy
// matcher into the single aggregate pass the prescription workflow runs
// before persisting orders. Evaluation is pure; audit emission is
// fire-and-forget and never blocks the return.
type Gate struct {
	doses        *DoseValidator
	interactions *InteractionChecker
	allergies    *AllergyMatcher
	sink         audit.Sink
}

// NewGate creates a gate over an immutable rule table. A nil sink disables
// audit emission.
func NewGate(table *RuleTable, sink audit.Sink) *Gate {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Gate{
		doses:        NewDoseValidator(table),
		interactions: NewInteractionChecker(table),
		allergies:    NewAllergyMatcher(),
		sink:         sink,
	}
}

// Evaluate runs every order through the dose validator, checks the order
// set for interactions, and matches against recorded allergies. The
// aggregate is valid only when every per-order verdict is valid; under
// Policy.BlockOnAllergy, any allergy conflict also fails the aggregate
// regardless of dose validity.
func (g *Gate) Evaluate(orders []ProposedOrder, profile PatientSafetyProfile, policy Policy) GateResult {
	result := GateResult{
		Valid:         true,
		OrderVerdicts: make([]Verdict, 0, len(orders)),
	}

	for _, order := range orders {
		verdict := g.doses.Evaluate(order, profile)
		if !verdict.Valid {
			result.Valid = false
		}
		result.OrderVerdicts = append(result.OrderVerdicts, verdict)
	}

	result.InteractionWarnings = g.interactions.Check(orders)
	result.AllergyConflicts = g.allergies.Match(orders, profile.ActiveDrugAllergies)

	if policy.BlockOnAllergy && len(result.AllergyConflicts) > 0 {
		result.Valid = false
	}

	g.emitAudit(orders, result)
	return result
}

func (g *Gate) emitAudit(orders []ProposedOrder, result GateResult) {
	if !result.Valid {
		g.sink.Emit(audit.NewEvent(audit.KindSafetyBlocked, subjectFor(orders), result))
		return
	}
	if len(result.InteractionWarnings) > 0 || len(result.AllergyConflicts) > 0 || anyWarnings(result.OrderVerdicts) {
		g.sink.Emit(audit.NewEvent(audit.KindSafetyWarning, subjectFor(orders), result))
	}
}

func anyWarnings(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if len(v.Warnings) > 0 {
			return true
		}
	}
	return false
}

func subjectFor(orders []ProposedOrder) string {
	if len(orders) == 0 {
		return "empty-order-set"
	}
	return normalizeName(orders[0].MedicationName)
}
