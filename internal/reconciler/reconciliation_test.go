package reconciler

import (
	"context"
	"testing"

	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/matcher"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/pkg/errors"
)

func createTestTable(name string, columns []string, rows ...[]string) *models.Table {
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

func createTestRequest() *ReconciliationRequest {
	bank := createTestTable("bank", []string{"Fecha", "Importe", "Referencia"},
		[]string{"05/01/2024", "100,00", "LOG10"},
		[]string{"05/01/2024", "100,00", "LOG10"},
		[]string{"06/01/2024", "20", ""},
		[]string{"15/02/2024", "40", "PV4"},
		[]string{"sin fecha", "1", "PV9"},
	)
	ledger := createTestTable("ledger", []string{"Date", "Amount", "Reference"},
		[]string{"2024-01-05", "100", "PV010"},
		[]string{"2024-01-06", "20.00", "PV099"},
		[]string{"2024-02-15", "40", "PV004"},
	)

	return &ReconciliationRequest{
		Left:  Source{Table: bank},
		Right: Source{Name: "General Ledger", Table: ledger},
	}
}

func TestNewReconciliationService(t *testing.T) {
	service, err := NewReconciliationService(nil, nil)
	if err != nil {
		t.Fatalf("NewReconciliationService() error = %v", err)
	}
	if !service.GetConfiguration().DetectDuplicates {
		t.Error("default configuration should detect duplicates")
	}

	if _, err := NewReconciliationService(&matcher.MatchingConfig{Strategy: matcher.Strategy(7)}, nil); err == nil {
		t.Error("expected error for invalid matching strategy")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantCode errors.ErrorCode
	}{
		{"empty window", Config{}, ""},
		{"open start", Config{EndDate: "2024-01-31"}, ""},
		{"closed window", Config{StartDate: "2024-01-01", EndDate: "2024-01-31"}, ""},
		{"bad start", Config{StartDate: "01/01/2024"}, errors.CodeInvalidDate},
		{"reversed window", Config{StartDate: "2024-02-01", EndDate: "2024-01-31"}, errors.CodeConfigConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.IsCode(err, tt.wantCode) {
				t.Errorf("Validate() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestProcessReconciliation(t *testing.T) {
	service, err := NewReconciliationService(nil, nil)
	if err != nil {
		t.Fatalf("NewReconciliationService() error = %v", err)
	}

	result, err := service.ProcessReconciliation(context.Background(), createTestRequest())
	if err != nil {
		t.Fatalf("ProcessReconciliation() error = %v", err)
	}

	s := result.Report.Summary
	if s.LeftName != "bank" || s.RightName != "General Ledger" {
		t.Errorf("dataset names = %q/%q, want bank/General Ledger", s.LeftName, s.RightName)
	}
	if s.LeftRecords != 4 || s.RightRecords != 3 {
		t.Errorf("record counts = %d/%d, want 4/3", s.LeftRecords, s.RightRecords)
	}
	if s.ExactMatches != 2 || s.DateAmountMatches != 1 || s.UnmatchedLeft != 1 || s.UnmatchedRight != 0 {
		t.Errorf("unexpected summary %+v", s)
	}

	if result.Left.Stats.DroppedDate != 1 {
		t.Errorf("left DroppedDate = %d, want 1", result.Left.Stats.DroppedDate)
	}
	if len(result.Left.Duplicates) != 1 || len(result.Warnings) != 1 {
		t.Errorf("duplicates = %+v, warnings = %v", result.Left.Duplicates, result.Warnings)
	}
	if result.Left.Detection.Mapping.Reference != "Referencia" {
		t.Errorf("left reference column = %q", result.Left.Detection.Mapping.Reference)
	}
	if result.RunID.String() == "" || result.ProcessedAt.IsZero() {
		t.Error("result should carry a run id and timestamp")
	}
}

func TestProcessReconciliationDateWindow(t *testing.T) {
	service, err := NewReconciliationService(nil, &Config{StartDate: "2024-02-01"})
	if err != nil {
		t.Fatalf("NewReconciliationService() error = %v", err)
	}

	result, err := service.ProcessReconciliation(context.Background(), createTestRequest())
	if err != nil {
		t.Fatalf("ProcessReconciliation() error = %v", err)
	}

	if result.Left.OutOfWindow != 3 || result.Right.OutOfWindow != 2 {
		t.Errorf("out of window = %d/%d, want 3/2", result.Left.OutOfWindow, result.Right.OutOfWindow)
	}
	if s := result.Report.Summary; s.TotalMatched != 1 || s.LeftRecords != 1 || s.RightRecords != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
	if result.Left.Duplicates != nil {
		t.Errorf("duplicates outside the window should be ignored: %+v", result.Left.Duplicates)
	}
}

func TestProcessReconciliationDetectionError(t *testing.T) {
	service, _ := NewReconciliationService(nil, nil)
	request := createTestRequest()
	request.Right.Table = createTestTable("notes", []string{"Cuenta", "Notas"}, []string{"x", "y"})

	_, err := service.ProcessReconciliation(context.Background(), request)

	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeColumnNotDetected {
		t.Fatalf("expected detection error, got %v", err)
	}
	if re.Context[errors.ContextDataset] != "General Ledger" {
		t.Errorf("dataset = %v, want General Ledger", re.Context[errors.ContextDataset])
	}
	if got := errors.AvailableColumns(err); len(got) != 2 || got[0] != "Cuenta" {
		t.Errorf("AvailableColumns() = %v", got)
	}
}

func TestProcessReconciliationHints(t *testing.T) {
	service, _ := NewReconciliationService(nil, nil)
	request := createTestRequest()
	request.Right.Table = createTestTable("ledger", []string{"Dia", "Haber", "Cuenta"},
		[]string{"2024-01-05", "100", "PV10"},
	)
	request.Right.Hints = &detector.ColumnMapping{Date: "Dia", Amount: "Haber", Reference: "Cuenta"}

	result, err := service.ProcessReconciliation(context.Background(), request)
	if err != nil {
		t.Fatalf("ProcessReconciliation() error = %v", err)
	}
	if result.Report.Summary.ExactMatches != 1 {
		t.Errorf("ExactMatches = %d, want 1", result.Report.Summary.ExactMatches)
	}
}

func TestProcessReconciliationStrategyOverride(t *testing.T) {
	service, _ := NewReconciliationService(nil, nil)
	newRequest := func(strategy matcher.Strategy) *ReconciliationRequest {
		return &ReconciliationRequest{
			Left: Source{Table: createTestTable("bank", []string{"Date", "Amount", "Reference"},
				[]string{"2024-01-05", "100", "PV001"},
				[]string{"2024-01-05", "50", "PV001"},
			)},
			Right: Source{Table: createTestTable("ledger", []string{"Date", "Amount", "Reference"},
				[]string{"2024-01-05", "50", "PV001"},
			)},
			Strategy: &strategy,
		}
	}

	tests := []struct {
		strategy matcher.Strategy
		wantTier models.MatchTier
		wantRow  int
	}{
		{matcher.StrategyTierFirst, models.TierExactDateReferenceAmount, 3},
		{matcher.StrategyRecordFirst, models.TierDateReference, 2},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			result, err := service.ProcessReconciliation(context.Background(), newRequest(tt.strategy))
			if err != nil {
				t.Fatalf("ProcessReconciliation() error = %v", err)
			}
			matches := result.Report.Matches()
			if len(matches) != 1 {
				t.Fatalf("matches = %d, want 1", len(matches))
			}
			if matches[0].Tier != tt.wantTier || matches[0].Left.SourceRow != tt.wantRow {
				t.Errorf("match = %v row %d, want %v row %d",
					matches[0].Tier, matches[0].Left.SourceRow, tt.wantTier, tt.wantRow)
			}
		})
	}

	bad := matcher.Strategy(9)
	request := newRequest(matcher.StrategyTierFirst)
	request.Strategy = &bad
	if _, err := service.ProcessReconciliation(context.Background(), request); !errors.IsCode(err, errors.CodeInvalidRequest) {
		t.Errorf("expected invalid request error, got %v", err)
	}
}

func TestProcessReconciliationInvalidRequest(t *testing.T) {
	service, _ := NewReconciliationService(nil, nil)

	_, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{Left: Source{Table: models.NewTable("a", nil)}})
	if !errors.IsCode(err, errors.CodeMissingField) {
		t.Errorf("expected missing field error, got %v", err)
	}
}

func TestProcessReconciliationCancelled(t *testing.T) {
	service, _ := NewReconciliationService(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.ProcessReconciliation(ctx, createTestRequest())
	if !errors.IsCode(err, errors.CodeCancelled) {
		t.Errorf("expected cancelled error, got %v", err)
	}
}

func TestFilterByDateWindow(t *testing.T) {
	records := []models.NormalizedRecord{
		{Date: "2024-01-01"}, {Date: "2024-01-15"}, {Date: "2024-01-31"}, {Date: "2024-02-01"},
	}

	tests := []struct {
		start, end string
		wantKept   int
	}{
		{"", "", 4},
		{"2024-01-15", "", 3},
		{"", "2024-01-31", 3},
		{"2024-01-15", "2024-01-31", 2},
		{"2024-03-01", "", 0},
	}

	for _, tt := range tests {
		kept, dropped := filterByDateWindow(records, tt.start, tt.end)
		if len(kept) != tt.wantKept || dropped != len(records)-tt.wantKept {
			t.Errorf("filterByDateWindow(%q, %q) kept %d dropped %d, want %d kept", tt.start, tt.end, len(kept), dropped, tt.wantKept)
		}
	}
}

func TestUpdateConfiguration(t *testing.T) {
	service, _ := NewReconciliationService(nil, nil)

	if err := service.UpdateConfiguration(&Config{StartDate: "bad"}); err == nil {
		t.Error("expected validation error")
	}
	if err := service.UpdateConfiguration(&Config{KeepOriginalRows: false}); err != nil {
		t.Fatalf("UpdateConfiguration() error = %v", err)
	}

	projection, err := service.Project(createTestRequest().Right.Table, nil)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if projection.Records[0].Original != nil {
		t.Error("updated configuration should drop original rows")
	}
}
