package safety

import "testing"

func TestMatchBidirectionalContainment(t *testing.T) {
	m := NewAllergyMatcher()

	orders := orderSet("Amoxicillin 500mg cap")
	allergies := []AllergyRecord{{AllergenName: "amoxicillin", Severity: "severe"}}

	conflicts := m.Match(orders, allergies)
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflicts)
	}
	if conflicts[0].Severity != "severe" {
		t.Errorf("severity not carried through: %+v", conflicts[0])
	}

	// Reverse direction: drug name contained in a longer allergen string.
	conflicts = m.Match(orderSet("ibuprofen"), []AllergyRecord{
		{AllergenName: "Ibuprofen (and other NSAIDs)", Severity: "moderate"},
	})
	if len(conflicts) != 1 {
		t.Fatalf("expected reverse containment match, got %v", conflicts)
	}
}

func TestMatchNormalization(t *testing.T) {
	m := NewAllergyMatcher()

	conflicts := m.Match(orderSet("  CETIRIZINE!!  10mg "), []AllergyRecord{
		{AllergenName: "cetirizine", Severity: "mild"},
	})
	if len(conflicts) != 1 {
		t.Fatalf("normalization should strip punctuation and case, got %v", conflicts)
	}
}

func TestMatchLooseFalsePositivePinned(t *testing.T) {
	m := NewAllergyMatcher()

	// Known precision trade-off: a free-text allergen fragment that happens
	// to be a substring of an unrelated drug name still matches.
	conflicts := m.Match(orderSet("paracetamol"), []AllergyRecord{
		{AllergenName: "acetamol", Severity: "mild"},
	})
	if len(conflicts) != 1 {
		t.Fatalf("loose matching behavior changed, got %v", conflicts)
	}
}

func TestMatchNoConflict(t *testing.T) {
	m := NewAllergyMatcher()

	conflicts := m.Match(orderSet("paracetamol"), []AllergyRecord{
		{AllergenName: "penicillin", Severity: "severe"},
	})
	if len(conflicts) != 0 {
		t.Errorf("expected no conflicts, got %v", conflicts)
	}

	// Empty strings after normalization never match everything.
	conflicts = m.Match(orderSet("!!!"), []AllergyRecord{
		{AllergenName: "penicillin", Severity: "severe"},
	})
	if len(conflicts) != 0 {
		t.Errorf("empty normalized drug name must not match, got %v", conflicts)
	}
}
