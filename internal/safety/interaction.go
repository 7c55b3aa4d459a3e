package safety

import "strings"

// InteractionChecker flags known drug-drug interactions within one set of
// concurrently-ordered medications. It only ever warns; interactions never
// block order creation.
type InteractionChecker struct {
	table *RuleTable
}

// NewInteractionChecker creates a checker over an immutable rule table.
func NewInteractionChecker(table *RuleTable) *InteractionChecker {
	return &InteractionChecker{table: table}
}

// Check returns one warning per matched interaction pair, in table order.
// A pair matches when each of its members appears, by substring
// containment, among the normalized ordered names. Containment is
// intentionally loose so that dosage-form variants ("ibuprofen 400 tab")
// still match; an occasional false positive is accepted.
func (c *InteractionChecker) Check(orders []ProposedOrder) []string {
	names := make([]string, 0, len(orders))
	for _, o := range orders {
		names = append(names, normalizeName(o.MedicationName))
	}

	var warnings []string
	for _, pair := range c.table.Interactions() {
		if containsDrug(names, pair.DrugA) && containsDrug(names, pair.DrugB) {
			warnings = append(warnings, pair.Warning)
		}
	}
	return warnings
}

func containsDrug(names []string, drug string) bool {
	for _, n := range names {
		if strings.Contains(n, drug) {
			return true
		}
	}
	return false
}
