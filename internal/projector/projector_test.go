package projector

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/pkg/errors"
)

func bankTable() *models.Table {
	table := models.NewTable("bank", []string{"Fecha", "Importe", "Referencia", "Concepto"})
	rows := [][]models.Cell{
		{models.TextCell("05/01/2024"), models.TextCell("1.234,56"), models.TextCell("LOG81"), models.TextCell("Deposito")},
		{models.TextCell("sin fecha"), models.TextCell("10"), models.TextCell("PV1"), models.EmptyCell()},
		{models.NumberCell(45297), models.NumberCell(-75.5), models.TextCell("pv 2"), models.TextCell("Retiro")},
		{models.TextCell("2024-01-07"), models.TextCell("0"), models.TextCell("PV3"), models.EmptyCell()},
		{models.TextCell("2024-01-08"), models.TextCell("12.345"), models.EmptyCell(), models.EmptyCell()},
		{models.TextCell("2024-01-09"), models.TextCell("0.004"), models.TextCell("PV4"), models.EmptyCell()},
	}
	for _, r := range rows {
		table.AppendRow(r)
	}
	return table
}

func TestProject(t *testing.T) {
	projection, err := NewProjector().Project(bankTable(), nil)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	want := []struct {
		date      string
		amount    string
		reference string
		row       int
	}{
		{"2024-01-05", "1234.56", "PV081", 2},
		{"2024-01-06", "75.5", "PV002", 4},
		{"2024-01-08", "12.35", "", 6},
	}

	if len(projection.Records) != len(want) {
		t.Fatalf("got %d records, want %d: %v", len(projection.Records), len(want), projection.Records)
	}
	for i, w := range want {
		got := projection.Records[i]
		if got.Date != w.date || !got.Amount.Equal(decimal.RequireFromString(w.amount)) ||
			got.Reference != w.reference || got.SourceRow != w.row {
			t.Errorf("record %d = %v, want %+v", i, got, w)
		}
	}

	if projection.Records[0].Description != "Deposito" {
		t.Errorf("description = %q, want Deposito", projection.Records[0].Description)
	}
	if projection.Records[0].Original.Get("Importe").String() != "1.234,56" {
		t.Error("record should keep its original row")
	}

	stats := projection.Stats
	if stats.TotalRows != 6 || stats.Kept != 3 || stats.DroppedDate != 1 || stats.DroppedAmount != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", stats.Dropped())
	}
}

func TestProjectKeepsOnlyEligibleRecords(t *testing.T) {
	projection, err := NewProjector().Project(bankTable(), nil)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	for _, r := range projection.Records {
		if !r.Eligible() {
			t.Errorf("ineligible record leaked: %v", r)
		}
	}
}

func TestProjectWithoutOriginalRows(t *testing.T) {
	projection, err := NewProjector(WithOriginalRows(false), WithHeaderOffset(1)).Project(bankTable(), nil)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if projection.Records[0].Original != nil {
		t.Error("original row should be omitted")
	}
	if projection.Records[0].SourceRow != 1 {
		t.Errorf("SourceRow = %d, want 1", projection.Records[0].SourceRow)
	}
}

func TestProjectDetectionError(t *testing.T) {
	table := models.NewTable("ledger", []string{"Cuenta", "Notas"})
	table.AppendRow([]models.Cell{models.TextCell("A"), models.TextCell("B")})

	_, err := NewProjector().Project(table, nil)
	if err == nil {
		t.Fatal("expected detection error")
	}

	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeColumnNotDetected {
		t.Fatalf("expected column_not_detected, got %v", err)
	}
	if got := errors.AvailableColumns(err); !reflect.DeepEqual(got, []string{"Cuenta", "Notas"}) {
		t.Errorf("AvailableColumns() = %v", got)
	}
	if got := errors.MissingFields(err); !reflect.DeepEqual(got, []string{"date", "amount"}) {
		t.Errorf("MissingFields() = %v", got)
	}
}

func TestProjectHints(t *testing.T) {
	table := models.NewTable("ledger", []string{"Cuenta", "Dia Valor", "Haber", "Notas"})
	table.AppendRow([]models.Cell{
		models.TextCell("PV9"), models.TextCell("10/02/2024"), models.TextCell("99,90"), models.TextCell("x"),
	})

	t.Run("hints resolve undetectable columns", func(t *testing.T) {
		hints := &detector.ColumnMapping{Date: "Dia Valor", Amount: "Haber", Reference: "Cuenta"}
		projection, err := NewProjector().Project(table, hints)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		got := projection.Records[0]
		if got.Date != "2024-02-10" || got.Reference != "PV009" || !got.Amount.Equal(decimal.RequireFromString("99.9")) {
			t.Errorf("unexpected record %v", got)
		}
		if projection.Detection.Sources[detector.FieldDate] != detector.SourceHint {
			t.Errorf("date source = %v, want hint", projection.Detection.Sources[detector.FieldDate])
		}
	})

	t.Run("unknown mandatory hint fails", func(t *testing.T) {
		_, err := NewProjector().Project(table, &detector.ColumnMapping{Date: "Fecha", Amount: "Haber"})
		if !errors.IsCode(err, errors.CodeColumnNotDetected) {
			t.Fatalf("expected detection error, got %v", err)
		}
		if got := errors.MissingFields(err); !reflect.DeepEqual(got, []string{"date"}) {
			t.Errorf("MissingFields() = %v, want [date]", got)
		}
	})

	t.Run("unknown optional hint is ignored", func(t *testing.T) {
		hints := &detector.ColumnMapping{Date: "Dia Valor", Amount: "Haber", Reference: "Codigo"}
		projection, err := NewProjector().Project(table, hints)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		if projection.Detection.Mapping.Reference != "" {
			t.Errorf("reference column = %q, want none", projection.Detection.Mapping.Reference)
		}
	})
}

func TestProjectEmptyTableWithKnownColumns(t *testing.T) {
	table := models.NewTable("empty", []string{"Fecha", "Monto"})

	projection, err := NewProjector().Project(table, nil)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(projection.Records) != 0 {
		t.Errorf("expected no records, got %d", len(projection.Records))
	}
}
