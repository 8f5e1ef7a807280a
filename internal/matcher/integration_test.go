package matcher

import (
	"math"
	"testing"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/projector"
)

func textTable(t *testing.T, name string, columns []string, rows ...[]string) *models.Table {
	t.Helper()

	table := models.NewTable(name, columns)
	for _, r := range rows {
		cells := make([]models.Cell, len(r))
		for i, v := range r {
			cells[i] = models.TextCell(v)
		}
		table.AppendRow(cells)
	}
	return table
}

func TestProjectAndReconcile(t *testing.T) {
	bank := textTable(t, "bank", []string{"Fecha", "Importe", "Referencia"},
		[]string{"05/01/2024", "100,00", "LOG10"},
		[]string{"05/01/2024", "999", "PV10"},
		[]string{"06/01/2024", "20", ""},
	)
	ledger := textTable(t, "ledger", []string{"Date", "Amount", "Reference"},
		[]string{"2024-01-05", "100", "PV010"},
		[]string{"2024-01-06", "20.00", "PV099"},
		[]string{"2024-01-07", "5", "PV1"},
	)

	p := projector.NewProjector()
	left, err := p.Project(bank, nil)
	if err != nil {
		t.Fatalf("Project(bank) error = %v", err)
	}
	right, err := p.Project(ledger, nil)
	if err != nil {
		t.Fatalf("Project(ledger) error = %v", err)
	}

	report := NewMatchingEngine(nil).Reconcile(left.Records, right.Records, "bank", "ledger")
	s := report.Summary

	if s.ExactMatches != 1 || s.DateAmountMatches != 1 || s.DateReferenceMatches != 0 {
		t.Errorf("tier counts = %d/%d/%d, want 1/0/1", s.ExactMatches, s.DateReferenceMatches, s.DateAmountMatches)
	}
	if s.UnmatchedLeft != 1 || s.UnmatchedRight != 1 {
		t.Errorf("unmatched = %d/%d, want 1/1", s.UnmatchedLeft, s.UnmatchedRight)
	}
	if s.LeftName != "bank" || s.RightName != "ledger" {
		t.Errorf("dataset names = %q/%q", s.LeftName, s.RightName)
	}
	if math.Abs(s.MatchRate-200.0/3.0) > 1e-9 {
		t.Errorf("MatchRate = %v, want 66.67", s.MatchRate)
	}
	if !s.Balanced() {
		t.Error("summary should be balanced")
	}

	orphans := report.Unmatched(models.SideRight)
	if len(orphans) != 1 || orphans[0].Right.SourceRow != 4 || orphans[0].Right.Reference != "PV001" {
		t.Errorf("unmatched right = %+v", orphans)
	}
	if got := report.Unmatched(models.SideLeft)[0].Left.Amount.String(); got != "999" {
		t.Errorf("unmatched left amount = %s, want 999", got)
	}
}
