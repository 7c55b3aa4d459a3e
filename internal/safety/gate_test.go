package safety

import (
	"sync"
	"testing"

	"github.com/clinicore/go-clinic-core/internal/audit"
)

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Emit(e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) kinds() []audit.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]audit.Kind, 0, len(c.events))
	for _, e := range c.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestGateAggregateValidity(t *testing.T) {
	gate := NewGate(DefaultRuleTable(), nil)
	profile := adult()

	good := gate.Evaluate(orderSet("paracetamol", "amoxicillin"), profile, Policy{})
	if !good.Valid {
		t.Fatalf("expected valid aggregate, got %+v", good)
	}
	if len(good.OrderVerdicts) != 2 {
		t.Fatalf("expected a verdict per order, got %d", len(good.OrderVerdicts))
	}

	mixed := gate.Evaluate([]ProposedOrder{
		{MedicationName: "paracetamol", DoseMg: 500, Frequency: FreqTwiceDaily, DurationDays: 5},
		{MedicationName: "paracetamol", DoseMg: 1500, Frequency: FreqOnceDaily, DurationDays: 5},
	}, profile, Policy{})
	if mixed.Valid {
		t.Error("one invalid order must fail the aggregate")
	}
	if !mixed.OrderVerdicts[0].Valid || mixed.OrderVerdicts[1].Valid {
		t.Errorf("per-order verdicts wrong: %+v", mixed.OrderVerdicts)
	}
}

func TestGateAllergyPolicy(t *testing.T) {
	gate := NewGate(DefaultRuleTable(), nil)
	profile := PatientSafetyProfile{
		AgeYears: 40,
		WeightKg: 75,
		ActiveDrugAllergies: []AllergyRecord{
			{AllergenName: "amoxicillin", Severity: "severe"},
		},
	}
	orders := orderSet("amoxicillin")

	warned := gate.Evaluate(orders, profile, Policy{BlockOnAllergy: false})
	if !warned.Valid {
		t.Error("default policy should warn, not block")
	}
	if len(warned.AllergyConflicts) != 1 {
		t.Fatalf("expected conflict reported, got %v", warned.AllergyConflicts)
	}

	blocked := gate.Evaluate(orders, profile, Policy{BlockOnAllergy: true})
	if blocked.Valid {
		t.Error("strict policy must block on allergy conflict")
	}
}

func TestGateInteractionsNeverBlock(t *testing.T) {
	gate := NewGate(DefaultRuleTable(), nil)

	result := gate.Evaluate([]ProposedOrder{
		{MedicationName: "warfarin", DoseMg: 5, Frequency: FreqOnceDaily, DurationDays: 30},
		{MedicationName: "aspirin", DoseMg: 81, Frequency: FreqOnceDaily, DurationDays: 30},
	}, adult(), Policy{})

	if len(result.InteractionWarnings) != 1 {
		t.Fatalf("expected one interaction warning, got %v", result.InteractionWarnings)
	}
	if !result.Valid {
		t.Error("interactions warn but must not block")
	}
}

func TestGateEmitsAuditEvents(t *testing.T) {
	sink := &captureSink{}
	gate := NewGate(DefaultRuleTable(), sink)

	// Clean pass: nothing audited.
	gate.Evaluate(orderSet("paracetamol"), adult(), Policy{})
	if len(sink.kinds()) != 0 {
		t.Errorf("clean pass should not be audited, got %v", sink.kinds())
	}

	// Warned pass.
	gate.Evaluate(orderSet("obscuromycin"), adult(), Policy{})
	// Blocked pass.
	gate.Evaluate([]ProposedOrder{
		{MedicationName: "paracetamol", DoseMg: 1500, Frequency: FreqOnceDaily, DurationDays: 5},
	}, adult(), Policy{})

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != audit.KindSafetyWarning || kinds[1] != audit.KindSafetyBlocked {
		t.Errorf("unexpected audit trail: %v", kinds)
	}
}
