package matcher

import (
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/normalizer"
)

const keySeparator = "|"

// RecordIndex maps match keys to positions in Records. Every bucket lists
// positions in ascending order, which is what makes first-candidate-wins
// deterministic. Only eligible records are indexed.
type RecordIndex struct {
	// ExactIndex maps date|reference|amount to record positions
	ExactIndex map[string][]int

	// DateReferenceIndex maps date|reference to record positions
	DateReferenceIndex map[string][]int

	// DateAmountIndex maps date|amount to record positions
	DateAmountIndex map[string][]int

	// Records holds the indexed records
	Records []models.NormalizedRecord
}

// NewRecordIndex builds the three lookup indexes over records
func NewRecordIndex(records []models.NormalizedRecord) *RecordIndex {
	index := &RecordIndex{
		ExactIndex:         make(map[string][]int),
		DateReferenceIndex: make(map[string][]int),
		DateAmountIndex:    make(map[string][]int),
		Records:            records,
	}

	for i, r := range records {
		if !r.Eligible() {
			continue
		}
		if key, ok := ExactKey(r); ok {
			index.ExactIndex[key] = append(index.ExactIndex[key], i)
		}
		if key, ok := DateReferenceKey(r); ok {
			index.DateReferenceIndex[key] = append(index.DateReferenceIndex[key], i)
		}
		if key, ok := DateAmountKey(r); ok {
			index.DateAmountIndex[key] = append(index.DateAmountIndex[key], i)
		}
	}

	return index
}

// ExactKey returns date|reference|amount; records without a date or
// reference have no exact key
func ExactKey(r models.NormalizedRecord) (string, bool) {
	if r.Date == "" || r.Reference == "" {
		return "", false
	}
	return r.Date + keySeparator + r.Reference + keySeparator + normalizer.AmountKey(r.Amount), true
}

// DateReferenceKey returns date|reference; records without a date or
// reference have no such key
func DateReferenceKey(r models.NormalizedRecord) (string, bool) {
	if r.Date == "" || r.Reference == "" {
		return "", false
	}
	return r.Date + keySeparator + r.Reference, true
}

// DateAmountKey returns date|amount; records without a date have no such key
func DateAmountKey(r models.NormalizedRecord) (string, bool) {
	if r.Date == "" {
		return "", false
	}
	return r.Date + keySeparator + normalizer.AmountKey(r.Amount), true
}

// KeyFor returns the lookup key of r for a tier
func KeyFor(tier models.MatchTier, r models.NormalizedRecord) (string, bool) {
	switch tier {
	case models.TierExactDateReferenceAmount:
		return ExactKey(r)
	case models.TierDateReference:
		return DateReferenceKey(r)
	case models.TierDateAmount:
		return DateAmountKey(r)
	default:
		return "", false
	}
}

// Candidates returns the positions sharing r's key for a tier, in order
func (ix *RecordIndex) Candidates(tier models.MatchTier, r models.NormalizedRecord) []int {
	key, ok := KeyFor(tier, r)
	if !ok {
		return nil
	}

	switch tier {
	case models.TierExactDateReferenceAmount:
		return ix.ExactIndex[key]
	case models.TierDateReference:
		return ix.DateReferenceIndex[key]
	case models.TierDateAmount:
		return ix.DateAmountIndex[key]
	default:
		return nil
	}
}

// IndexStats describes the shape of an index
type IndexStats struct {
	Records           int `json:"records"`
	ExactKeys         int `json:"exact_keys"`
	DateReferenceKeys int `json:"date_reference_keys"`
	DateAmountKeys    int `json:"date_amount_keys"`
	LargestBucket     int `json:"largest_bucket"`
}

// Stats returns statistics about the index
func (ix *RecordIndex) Stats() IndexStats {
	stats := IndexStats{
		Records:           len(ix.Records),
		ExactKeys:         len(ix.ExactIndex),
		DateReferenceKeys: len(ix.DateReferenceIndex),
		DateAmountKeys:    len(ix.DateAmountIndex),
	}

	for _, idx := range []map[string][]int{ix.ExactIndex, ix.DateReferenceIndex, ix.DateAmountIndex} {
		for _, bucket := range idx {
			if len(bucket) > stats.LargestBucket {
				stats.LargestBucket = len(bucket)
			}
		}
	}

	return stats
}
