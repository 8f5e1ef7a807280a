package matcher

import (
	"reflect"
	"testing"

	"golang-pv-reconciliation/internal/models"
)

func TestNewRecordIndex(t *testing.T) {
	records := []models.NormalizedRecord{
		rec(2, "2024-01-01", "10.00", "PV001"),
		rec(3, "2024-01-01", "10", "PV001"),
		rec(4, "2024-01-01", "10", ""),
		rec(5, "", "10", "PV001"),
		rec(6, "2024-01-01", "0", "PV001"),
	}

	index := NewRecordIndex(records)

	tests := []struct {
		name string
		got  []int
		want []int
	}{
		{"exact", index.ExactIndex["2024-01-01|PV001|10"], []int{0, 1}},
		{"date reference", index.DateReferenceIndex["2024-01-01|PV001"], []int{0, 1}},
		{"date amount", index.DateAmountIndex["2024-01-01|10"], []int{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("bucket = %v, want %v", tt.got, tt.want)
			}
		})
	}

	stats := index.Stats()
	want := IndexStats{Records: 5, ExactKeys: 1, DateReferenceKeys: 1, DateAmountKeys: 1, LargestBucket: 3}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

func TestKeys(t *testing.T) {
	withRef := rec(2, "2024-01-01", "1234.50", "PV081")
	noRef := rec(3, "2024-01-01", "7", "")

	if key, ok := ExactKey(withRef); !ok || key != "2024-01-01|PV081|1234.5" {
		t.Errorf("ExactKey() = %q, %v", key, ok)
	}
	if _, ok := ExactKey(noRef); ok {
		t.Error("records without reference have no exact key")
	}
	if _, ok := DateReferenceKey(noRef); ok {
		t.Error("records without reference have no date+reference key")
	}
	if key, ok := DateAmountKey(noRef); !ok || key != "2024-01-01|7" {
		t.Errorf("DateAmountKey() = %q, %v", key, ok)
	}
	if _, ok := KeyFor(models.MatchTier(0), withRef); ok {
		t.Error("unknown tier has no key")
	}
}

func TestCandidates(t *testing.T) {
	index := NewRecordIndex([]models.NormalizedRecord{
		rec(2, "2024-01-01", "5", "PV001"),
		rec(3, "2024-01-01", "6", "PV001"),
	})

	got := index.Candidates(models.TierDateReference, rec(9, "2024-01-01", "99", "PV001"))
	if !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Candidates() = %v, want [0 1]", got)
	}
	if got := index.Candidates(models.TierExactDateReferenceAmount, rec(9, "2024-01-01", "5", "")); got != nil {
		t.Errorf("Candidates() = %v, want nil", got)
	}
}

func TestDetectDuplicates(t *testing.T) {
	records := []models.NormalizedRecord{
		rec(2, "2024-01-01", "10", "PV001"),
		rec(3, "2024-01-02", "10", "PV001"),
		rec(4, "2024-01-01", "10.00", "PV001"),
		rec(5, "2024-01-02", "10", "PV001"),
		rec(6, "2024-01-02", "10", "PV001"),
		rec(7, "2024-01-03", "4", ""),
		rec(8, "2024-01-03", "4", ""),
	}

	groups := DetectDuplicates(records)

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if !reflect.DeepEqual(groups[0].SourceRows, []int{2, 4}) || groups[0].Key != "2024-01-01|PV001|10" {
		t.Errorf("first group = %+v", groups[0])
	}
	if groups[1].Size() != 3 || groups[1].TotalAmount.String() != "30" {
		t.Errorf("second group = %+v", groups[1])
	}

	if got := DetectDuplicates(nil); len(got) != 0 {
		t.Errorf("DetectDuplicates(nil) = %v, want none", got)
	}
}
