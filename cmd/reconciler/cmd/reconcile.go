package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-pv-reconciliation/cmd/reconciler/config"
	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/matcher"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/parsers"
	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/internal/reporter"
	"golang-pv-reconciliation/internal/store"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// reconcileOptions is the validated form of the reconcile flags
type reconcileOptions struct {
	Left, Right, Workbook string
	LeftName, RightName   string
	LeftSheet, RightSheet string
	LeftHints, RightHints *detector.ColumnMapping

	Parse      *parsers.ParseConfig
	Matching   *matcher.MatchingConfig
	Reconciler *reconciler.Config
	Report     *reporter.ReportConfig

	Synonyms    string
	SampleSize  int
	MinDateHits int
	Output      string
	Persist     bool
	DB          string
}

var reconcileOpts *reconcileOptions

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match the records of two datasets",
	Long: `Reconcile reads two tables, detects their date, amount, reference and
description columns, and matches records in three tiers:

  1. exact           same date, same amount, same reference
  2. date+reference  same date and reference, amounts differ
  3. date+amount     same date and amount, references differ

Each record takes part in at most one match. Inputs are CSV files or
workbook sheets, given either as two files or as one workbook whose first
two sheets hold the left and right datasets.

Examples:
  # Two files, console report
  reconciler reconcile --left bank.csv --right ledger.xlsx --right-sheet Pagos

  # One workbook, JSON written to a file
  reconciler reconcile --workbook pagos.xlsx --format json --output result.json

  # Columns the detector cannot find on its own
  reconciler reconcile --left bank.csv --right ledger.csv \
    --right-columns date=Dia,amount=Haber,reference=Cuenta

  # Only January, stored in the run history
  reconciler reconcile --left bank.csv --right ledger.csv \
    --start-date 2024-01-01 --end-date 2024-01-31 --persist --db runs.db`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringP("left", "l", "", "left dataset file (.csv, .txt, .xlsx, .xlsm)")
	reconcileCmd.Flags().StringP("right", "r", "", "right dataset file (.csv, .txt, .xlsx, .xlsm)")
	reconcileCmd.Flags().StringP("workbook", "w", "", "workbook holding the left dataset on its first sheet and the right on its second")
	reconcileCmd.Flags().String("left-name", "", "left dataset name used in reports (default: file or sheet name)")
	reconcileCmd.Flags().String("right-name", "", "right dataset name used in reports (default: file or sheet name)")
	reconcileCmd.Flags().String("left-sheet", "", "sheet of the left workbook to read (default: first)")
	reconcileCmd.Flags().String("right-sheet", "", "sheet of the right workbook to read (default: first)")
	reconcileCmd.Flags().String("left-columns", "", "column hints for the left dataset, e.g. date=Fecha,amount=Importe")
	reconcileCmd.Flags().String("right-columns", "", "column hints for the right dataset, e.g. date=Dia,reference=Cuenta")
	reconcileCmd.Flags().String("delimiter", "", "CSV delimiter (default: sniffed from the header)")
	reconcileCmd.Flags().String("encoding", "auto", "CSV encoding: auto, utf-8, windows-1252, iso-8859-1")

	// Matching flags
	reconcileCmd.Flags().String("strategy", "tier-first", "matching strategy: tier-first or record-first")
	reconcileCmd.Flags().String("start-date", "", "ignore records before this date (YYYY-MM-DD)")
	reconcileCmd.Flags().String("end-date", "", "ignore records after this date (YYYY-MM-DD)")
	reconcileCmd.Flags().Bool("detect-duplicates", true, "report records sharing date, reference and amount")

	// Output flags
	reconcileCmd.Flags().StringP("format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().Int("max-items", 50, "console list length per section, 0 for all")
	reconcileCmd.Flags().Bool("persist", false, "store the run in the history database given by --db")

	// Bind flags to viper
	for _, name := range []string{
		"left", "right", "workbook",
		"left-name", "right-name", "left-sheet", "right-sheet",
		"left-columns", "right-columns", "delimiter", "encoding",
		"strategy", "start-date", "end-date", "detect-duplicates",
		"format", "output", "max-items", "persist",
	} {
		viper.BindPFlag(name, reconcileCmd.Flags().Lookup(name))
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	opts, err := loadReconcileOptions()
	if err != nil {
		return err
	}
	reconcileOpts = opts
	return nil
}

// loadReconcileOptions reads the reconcile settings from viper, so values
// may come from flags, the config file or RECONCILER_* variables.
func loadReconcileOptions() (*reconcileOptions, error) {
	opts := &reconcileOptions{
		Left:        viper.GetString("left"),
		Right:       viper.GetString("right"),
		Workbook:    viper.GetString("workbook"),
		LeftName:    viper.GetString("left-name"),
		RightName:   viper.GetString("right-name"),
		LeftSheet:   viper.GetString("left-sheet"),
		RightSheet:  viper.GetString("right-sheet"),
		Synonyms:    viper.GetString("synonyms"),
		SampleSize:  viper.GetInt("detector.sample-size"),
		MinDateHits: viper.GetInt("detector.min-date-hits"),
		Output:      viper.GetString("output"),
		Persist:     viper.GetBool("persist"),
		DB:          viper.GetString("db"),
	}

	// Validate inputs
	switch {
	case opts.Workbook != "" && (opts.Left != "" || opts.Right != ""):
		return nil, errors.ConfigurationError(errors.CodeConfigConflict, "workbook",
			"--workbook cannot be combined with --left or --right", nil)
	case opts.Workbook != "":
		if (opts.LeftSheet == "") != (opts.RightSheet == "") {
			return nil, errors.ConfigurationError(errors.CodeConfigConflict, "left-sheet",
				"with --workbook give both --left-sheet and --right-sheet, or neither", nil)
		}
		if err := validateFileExists(opts.Workbook, "workbook"); err != nil {
			return nil, err
		}
	case opts.Left == "" || opts.Right == "":
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "left/right", nil, nil).
			WithSuggestion("give --left and --right, or --workbook")
	default:
		if err := validateFileExists(opts.Left, "left dataset"); err != nil {
			return nil, err
		}
		if err := validateFileExists(opts.Right, "right dataset"); err != nil {
			return nil, err
		}
	}

	var err error
	if opts.LeftHints, err = config.ParseColumnHints("left-columns", viper.GetString("left-columns")); err != nil {
		return nil, err
	}
	if opts.RightHints, err = config.ParseColumnHints("right-columns", viper.GetString("right-columns")); err != nil {
		return nil, err
	}

	if opts.Parse, err = config.CreateParseConfig(viper.GetString("delimiter"), viper.GetString("encoding")); err != nil {
		return nil, err
	}
	if opts.Matching, err = config.CreateMatchingConfig(viper.GetString("strategy")); err != nil {
		return nil, err
	}
	opts.Reconciler, err = config.CreateReconcilerConfig(
		viper.GetString("start-date"),
		viper.GetString("end-date"),
		viper.GetBool("detect-duplicates"),
	)
	if err != nil {
		return nil, err
	}
	if opts.Report, err = config.CreateReportConfig(viper.GetString("format"), viper.GetInt("max-items")); err != nil {
		return nil, err
	}

	if opts.Persist && opts.DB == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "db", nil, nil).
			WithSuggestion("give --db runs.db together with --persist")
	}

	return opts, nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, description, nil, nil)
	}

	if _, err := parsers.DetectFormat(filePath); err != nil {
		return err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("input", description)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeDirectoryError, filePath, err).WithContext("input", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath, nil).
			WithContext("input", description).
			WithSuggestion("expected a file, got a directory")
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if reconcileOpts == nil {
		if err := validateReconcileFlags(cmd, args); err != nil {
			return err
		}
	}
	return executeReconcile(cmd.Context(), reconcileOpts, cmd.OutOrStdout(), logger.GetGlobalLogger())
}

// executeReconcile reads both datasets, reconciles them and writes the
// report to out, or to opts.Output when set
func executeReconcile(ctx context.Context, opts *reconcileOptions, out io.Writer, log logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log = log.WithComponent("cli")

	op := logger.NewOperationLogger("reconcile", log)

	reader, err := parsers.NewTableReader(opts.Parse, log)
	if err != nil {
		return err
	}

	left, right, err := readInputs(reader, opts)
	if err != nil {
		return err
	}
	op.Step("read", logger.Fields{
		"left_rows":   left.Len(),
		"right_rows":  right.Len(),
		"left_hints":  describeHints(opts.LeftHints),
		"right_hints": describeHints(opts.RightHints),
	})

	det, err := config.CreateDetector(opts.Synonyms, opts.SampleSize, opts.MinDateHits, log)
	if err != nil {
		return err
	}

	service, err := reconciler.NewReconciliationService(opts.Matching, opts.Reconciler,
		reconciler.WithLogger(log),
		reconciler.WithDetector(det),
	)
	if err != nil {
		return err
	}

	result, err := service.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
		Left:  reconciler.Source{Name: opts.LeftName, Table: left, Hints: opts.LeftHints},
		Right: reconciler.Source{Name: opts.RightName, Table: right, Hints: opts.RightHints},
	})
	if err != nil {
		return err
	}
	op.Step("match", logger.Fields{
		"matched":         result.Report.Summary.TotalMatched,
		"unmatched_left":  result.Report.Summary.UnmatchedLeft,
		"unmatched_right": result.Report.Summary.UnmatchedRight,
	})

	if opts.Persist {
		if err := persistRun(ctx, opts.DB, result, log); err != nil {
			return err
		}
	}

	generator, err := reporter.NewSafeReportGenerator(opts.Report, log)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		if err := generator.WriteReportFile(result, opts.Output); err != nil {
			return err
		}
		op.Success("Report written to " + opts.Output)
		return nil
	}

	if err := generator.GenerateReportSafely(result, out); err != nil {
		return err
	}
	op.Success("Reconciliation completed")
	return nil
}

func readInputs(reader *parsers.TableReader, opts *reconcileOptions) (*models.Table, *models.Table, error) {
	if opts.Workbook != "" && opts.LeftSheet == "" {
		return reader.ReadWorkbookPair(opts.Workbook)
	}

	leftPath, rightPath := opts.Left, opts.Right
	if opts.Workbook != "" {
		leftPath, rightPath = opts.Workbook, opts.Workbook
	}

	left, err := reader.ReadFile(leftPath, opts.LeftSheet)
	if err != nil {
		return nil, nil, err
	}
	right, err := reader.ReadFile(rightPath, opts.RightSheet)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func persistRun(ctx context.Context, dsn string, result *reconciler.ReconciliationResult, log logger.Logger) error {
	runs, err := store.Open(ctx, dsn, log)
	if err != nil {
		return err
	}
	defer runs.Close()

	return logger.TimedOperation("persist run", log.WithField("run_id", result.RunID).WithField("db", dsn), func() error {
		return runs.Save(ctx, result)
	})
}

// describeHints renders hints the way they are written on the command line
func describeHints(hints *detector.ColumnMapping) string {
	if hints == nil || hints.IsZero() {
		return "-"
	}
	out := ""
	for _, f := range detector.Fields {
		if col := hints.Get(f); col != "" {
			if out != "" {
				out += ","
			}
			out += fmt.Sprintf("%s=%s", f, col)
		}
	}
	return out
}
