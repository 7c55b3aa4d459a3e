package safety

import (
	"strings"
	"testing"
)

func orderSet(names ...string) []ProposedOrder {
	orders := make([]ProposedOrder, 0, len(names))
	for _, n := range names {
		orders = append(orders, ProposedOrder{MedicationName: n, DoseMg: 100, Frequency: FreqOnceDaily, DurationDays: 5})
	}
	return orders
}

func TestCheckWarfarinAspirin(t *testing.T) {
	c := NewInteractionChecker(DefaultRuleTable())

	warnings := c.Check(orderSet("Warfarin", "Aspirin"))
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "warfarin") || !strings.Contains(warnings[0], "aspirin") {
		t.Errorf("warning %q should reference both drugs", warnings[0])
	}
}

func TestCheckSubstringContainment(t *testing.T) {
	c := NewInteractionChecker(DefaultRuleTable())

	// Dosage-form variants still match.
	warnings := c.Check(orderSet("Warfarin 5mg tab", "  aspirin 81mg EC "))
	if len(warnings) != 1 {
		t.Fatalf("expected containment match, got %v", warnings)
	}
}

func TestCheckTableOrderAndMultiplePairs(t *testing.T) {
	c := NewInteractionChecker(DefaultRuleTable())

	warnings := c.Check(orderSet("warfarin", "aspirin", "ibuprofen"))
	// warfarin/aspirin, warfarin/ibuprofen, ibuprofen/aspirin in table order.
	if len(warnings) != 3 {
		t.Fatalf("expected three warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "warfarin + aspirin") {
		t.Errorf("first warning out of table order: %q", warnings[0])
	}
	if !strings.Contains(warnings[1], "warfarin + ibuprofen") {
		t.Errorf("second warning out of table order: %q", warnings[1])
	}
}

func TestCheckDeterministic(t *testing.T) {
	c := NewInteractionChecker(DefaultRuleTable())
	orders := orderSet("methotrexate", "ibuprofen", "aspirin")

	first := c.Check(orders)
	for i := 0; i < 5; i++ {
		again := c.Check(orders)
		if len(again) != len(first) {
			t.Fatalf("non-deterministic warning count")
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("non-deterministic warning order: %v vs %v", first, again)
			}
		}
	}
}

func TestCheckNoInteraction(t *testing.T) {
	c := NewInteractionChecker(DefaultRuleTable())

	if warnings := c.Check(orderSet("amoxicillin", "cetirizine")); len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if warnings := c.Check(orderSet("warfarin")); len(warnings) != 0 {
		t.Errorf("single drug cannot interact, got %v", warnings)
	}
}
