package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"golang-pv-reconciliation/internal/models"
)

// DuplicateGroup lists records of one dataset that share an exact key.
// Only one of them can take part in an exact match per counterpart.
type DuplicateGroup struct {
	Key         string          `json:"key"`
	SourceRows  []int           `json:"source_rows"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Reason      string          `json:"reason"`
}

// Size returns the number of records in the group
func (g DuplicateGroup) Size() int {
	return len(g.SourceRows)
}

// DetectDuplicates groups records sharing date, reference and amount.
// Groups are ordered by the position of their first record. The result is
// informational and does not influence matching.
func DetectDuplicates(records []models.NormalizedRecord) []DuplicateGroup {
	positions := make(map[string][]int)
	var keys []string

	for i, r := range records {
		key, ok := ExactKey(r)
		if !ok || !r.Eligible() {
			continue
		}
		if _, seen := positions[key]; !seen {
			keys = append(keys, key)
		}
		positions[key] = append(positions[key], i)
	}

	var groups []DuplicateGroup
	for _, key := range keys {
		members := positions[key]
		if len(members) < 2 {
			continue
		}

		group := DuplicateGroup{
			Key:         key,
			SourceRows:  make([]int, 0, len(members)),
			TotalAmount: decimal.Zero,
		}
		for _, idx := range members {
			group.SourceRows = append(group.SourceRows, records[idx].SourceRow)
			group.TotalAmount = group.TotalAmount.Add(records[idx].Amount)
		}
		group.Reason = fmt.Sprintf("%d records share date, reference and amount", len(members))
		groups = append(groups, group)
	}

	return groups
}
