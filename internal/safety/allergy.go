package safety

import "strings"

// AllergyMatcher fuzzy-matches proposed medications against the patient's
// recorded drug allergies.
type AllergyMatcher struct{}

// NewAllergyMatcher creates a matcher. It carries no state; matching is
// purely lexical.
func NewAllergyMatcher() *AllergyMatcher {
	return &AllergyMatcher{}
}

// Match returns a conflict for every order/allergen pair where either
// normalized name contains the other. Bidirectional containment trades
// precision for recall: "amoxicillin 500 cap" matches a recorded
// "amoxicillin" allergy, and a free-text allergen fragment still matches
// the drug that contains it.
func (m *AllergyMatcher) Match(orders []ProposedOrder, allergies []AllergyRecord) []AllergyConflict {
	var conflicts []AllergyConflict
	for _, o := range orders {
		drug := normalizeLoose(o.MedicationName)
		if drug == "" {
			continue
		}
		for _, a := range allergies {
			allergen := normalizeLoose(a.AllergenName)
			if allergen == "" {
				continue
			}
			if strings.Contains(drug, allergen) || strings.Contains(allergen, drug) {
				conflicts = append(conflicts, AllergyConflict{
					DrugName:     o.MedicationName,
					AllergenName: a.AllergenName,
					Severity:     a.Severity,
				})
			}
		}
	}
	return conflicts
}

// normalizeLoose lowercases, collapses whitespace, and strips characters
// outside [a-z0-9 .-].
func normalizeLoose(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-':
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
