package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"golang-pv-reconciliation/cmd/reconciler/config"
	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/parsers"
	"golang-pv-reconciliation/internal/projector"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

const detectSampleSize = 5

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect FILE",
	Short: "Show the columns detected in a dataset",
	Long: `Detect reads one table and prints which column was chosen for each field,
and how: by hint, by header name or by content. When date and amount are
both found it also shows how many rows would take part in matching.

Use it to check a new file layout before reconciling, or to find the
column names to pass as --left-columns or --right-columns.

Examples:
  reconciler detect bank.csv
  reconciler detect pagos.xlsx --sheet Ledger
  reconciler detect ledger.csv --columns date=Dia,amount=Haber --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().String("sheet", "", "workbook sheet to read (default: first)")
	detectCmd.Flags().String("columns", "", "column hints, e.g. date=Fecha,amount=Importe")
	detectCmd.Flags().Bool("json", false, "print the result as JSON")
}

// detectResult is what the detect command reports for one table
type detectResult struct {
	Source    string                    `json:"source"`
	Table     string                    `json:"table"`
	Columns   []string                  `json:"columns"`
	Rows      int                       `json:"rows"`
	Detection *detector.Detection       `json:"detection"`
	Missing   []string                  `json:"missing,omitempty"`
	Stats     *projector.Stats          `json:"stats,omitempty"`
	Sample    []models.NormalizedRecord `json:"sample,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	sheet, _ := cmd.Flags().GetString("sheet")
	columns, _ := cmd.Flags().GetString("columns")
	asJSON, _ := cmd.Flags().GetBool("json")

	hints, err := config.ParseColumnHints("columns", columns)
	if err != nil {
		return err
	}

	if err := validateFileExists(args[0], "dataset"); err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("cli")
	det, err := newDetector(log)
	if err != nil {
		return err
	}

	reader, err := parsers.NewTableReader(nil, log)
	if err != nil {
		return err
	}
	table, err := reader.ReadFile(args[0], sheet)
	if err != nil {
		return err
	}

	result, detectErr := detectTable(args[0], table, hints, det, log)
	if result == nil {
		return detectErr
	}

	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "encode detection", err)
		}
	} else {
		printDetection(cmd.OutOrStdout(), result)
	}

	return detectErr
}

// detectTable detects the columns of table. When date or amount cannot be
// resolved it still returns the partial result, together with the
// detection error.
func detectTable(source string, table *models.Table, hints *detector.ColumnMapping, det *detector.Detector, log logger.Logger) (*detectResult, error) {
	result := &detectResult{
		Source:  source,
		Table:   table.Name,
		Columns: table.Columns,
		Rows:    table.Len(),
	}

	p := projector.NewProjector(
		projector.WithDetector(det),
		projector.WithLogger(log),
		projector.WithOriginalRows(false),
	)

	projection, err := p.Project(table, hints)
	if err != nil {
		rerr, ok := errors.AsReconcilerError(err)
		if !ok || rerr.Category != errors.CategoryDetection {
			return nil, err
		}

		var given detector.ColumnMapping
		if hints != nil {
			given = *hints
		}
		result.Detection = det.DetectWithHints(table, given)
		result.Missing = errors.MissingFields(rerr)
		return result, err
	}

	result.Detection = projection.Detection
	result.Stats = &projection.Stats
	sample := projection.Records
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}
	result.Sample = sample

	return result, nil
}

func printDetection(w io.Writer, r *detectResult) {
	fmt.Fprintf(w, "Table:   %s (%d rows)\n", r.Table, r.Rows)
	fmt.Fprintf(w, "Source:  %s\n", r.Source)
	fmt.Fprintf(w, "Columns: %s\n\n", strings.Join(r.Columns, ", "))

	fmt.Fprintf(w, "  %-12s %-24s %s\n", "FIELD", "COLUMN", "FOUND BY")
	for _, f := range detector.Fields {
		column := r.Detection.Mapping.Get(f)
		if column == "" {
			column = "-"
		}
		fmt.Fprintf(w, "  %-12s %-24s %s\n", f, column, r.Detection.Sources[f])
	}

	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "\nNot found: %s\n", strings.Join(r.Missing, ", "))
		fmt.Fprintf(w, "Map them with --columns, e.g. --columns %s=COLUMN\n", r.Missing[0])
		return
	}

	if r.Stats != nil {
		fmt.Fprintf(w, "\nRows kept: %d of %d (%d without date, %d without a positive amount)\n",
			r.Stats.Kept, r.Stats.TotalRows, r.Stats.DroppedDate, r.Stats.DroppedAmount)
	}

	if len(r.Sample) > 0 {
		fmt.Fprintf(w, "\nFirst records:\n")
		for _, rec := range r.Sample {
			ref := rec.Reference
			if ref == "" {
				ref = "(no reference)"
			}
			fmt.Fprintf(w, "  row %-5d %s  %12s  %s\n", rec.SourceRow, rec.Date, rec.Amount.StringFixed(2), ref)
		}
	}
}
