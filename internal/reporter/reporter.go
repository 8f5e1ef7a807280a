// Package reporter renders reconciliation results for people and programs.
//
// Supported output formats:
//   - Console: plain text sections for terminal display
//   - JSON: the complete run, including the full match report
//   - CSV: one line per match result with the provenance of both sides
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

// Supported output formats
const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat converts a user supplied name into an OutputFormat
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatConsole, nil
	}
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format %q (expected console, json or csv)", s)
	}
	return f, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options, console only
	IncludeMatches   bool `json:"include_matches"`
	IncludeUnmatched bool `json:"include_unmatched"`
	IncludeDetection bool `json:"include_detection"`

	// MaxListItems caps each console list; zero prints everything
	MaxListItems int `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeMatches:   true,
		IncludeUnmatched: true,
		IncludeDetection: true,
		MaxListItems:     50,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items must not be negative, got %d", c.MaxListItems)
	}

	switch c.CSVDelimiter {
	case ',', ';', '\t', '|':
	default:
		return fmt.Errorf("unsupported CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil || result.Report == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result.Report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	w := &errWriter{w: writer}
	report := result.Report
	summary := report.Summary

	w.printf("RECONCILIATION REPORT\n")
	w.printf("%s vs %s\n", summary.LeftName, summary.RightName)
	if !result.ProcessedAt.IsZero() {
		w.printf("Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	}
	if result.RunID != uuid.Nil {
		w.printf("Run ID: %s\n", result.RunID)
	}
	if report.Strategy != "" {
		w.printf("Strategy: %s\n", report.Strategy)
	}
	w.printf("\n")

	w.printf("=== SUMMARY ===\n")
	rg.printSummary(summary, w)
	w.printf("\n")

	w.printf("=== MATCH TIERS ===\n")
	for _, tier := range models.AllTiers {
		w.printf("%-36s %d\n", tier.Label()+":", summary.TierCount(tier))
	}
	w.printf("\n")

	w.printf("=== AMOUNTS ===\n")
	w.printf("%-36s %s\n", "Matched:", summary.MatchedAmount.StringFixed(2))
	w.printf("%-36s %s\n", "Unmatched "+summary.LeftName+":", summary.UnmatchedLeftAmount.StringFixed(2))
	w.printf("%-36s %s\n", "Unmatched "+summary.RightName+":", summary.UnmatchedRightAmount.StringFixed(2))
	w.printf("\n")

	if rg.config.IncludeDetection && result.Left != nil && result.Right != nil {
		w.printf("=== COLUMNS ===\n")
		rg.printSide(result.Left, w)
		rg.printSide(result.Right, w)
		w.printf("\n")
	}

	if len(result.Warnings) > 0 {
		w.printf("=== WARNINGS ===\n")
		for _, warning := range result.Warnings {
			w.printf("  - %s\n", warning)
		}
		w.printf("\n")
	}

	if rg.config.IncludeMatches {
		if matches := report.Matches(); len(matches) > 0 {
			w.printf("=== MATCHES ===\n")
			rg.printList(matches, w, func(i int, m models.MatchResult) {
				w.printf("  %d. [%s] %s row %d <-> %s row %d  %s  %s  %s\n",
					i+1,
					m.Tier,
					summary.LeftName, m.Left.SourceRow,
					summary.RightName, m.Right.SourceRow,
					m.Left.Date,
					m.Left.Amount.StringFixed(2),
					displayReference(m.Left.Reference))
			})
			w.printf("\n")
		}
	}

	if rg.config.IncludeUnmatched {
		rg.printUnmatched(report, models.SideLeft, summary.LeftName, w)
		rg.printUnmatched(report, models.SideRight, summary.RightName, w)
	}

	return w.err
}

func (rg *ReportGenerator) printSummary(s models.ReportSummary, w *errWriter) {
	w.printf("%-36s %d\n", "Records in "+s.LeftName+":", s.LeftRecords)
	w.printf("%-36s %d\n", "Records in "+s.RightName+":", s.RightRecords)
	w.printf("%-36s %d\n", "Matched pairs:", s.TotalMatched)
	w.printf("%-36s %d (%.1f%%)\n", "Unmatched "+s.LeftName+":", s.UnmatchedLeft,
		rg.calculatePercentage(s.UnmatchedLeft, s.LeftRecords))
	w.printf("%-36s %d (%.1f%%)\n", "Unmatched "+s.RightName+":", s.UnmatchedRight,
		rg.calculatePercentage(s.UnmatchedRight, s.RightRecords))
	w.printf("%-36s %.1f%%\n", "Match rate:", s.MatchRate)
}

func (rg *ReportGenerator) printSide(side *reconciler.SideResult, w *errWriter) {
	w.printf("%s:\n", side.Dataset)
	if side.Detection != nil {
		for _, field := range detector.Fields {
			column := side.Detection.Mapping.Get(field)
			if column == "" {
				column = "-"
			}
			w.printf("  %-12s %s (%s)\n", string(field)+":", column, side.Detection.Sources[field])
		}
	}
	w.printf("  rows %d, kept %d, no date %d, no amount %d",
		side.Stats.TotalRows, side.Stats.Kept, side.Stats.DroppedDate, side.Stats.DroppedAmount)
	if side.OutOfWindow > 0 {
		w.printf(", out of window %d", side.OutOfWindow)
	}
	w.printf("\n")
}

func (rg *ReportGenerator) printUnmatched(report *models.MatchReport, side models.Side, name string, w *errWriter) {
	unmatched := report.Unmatched(side)
	if len(unmatched) == 0 {
		return
	}

	w.printf("=== UNMATCHED: %s ===\n", strings.ToUpper(name))
	rg.printList(unmatched, w, func(i int, m models.MatchResult) {
		r := m.Record()
		date := r.Date
		if date == "" {
			date = "(no date)"
		}
		w.printf("  %d. row %d  %s  %s  %s\n",
			i+1, r.SourceRow, date, r.Amount.StringFixed(2), displayReference(r.Reference))
	})
	w.printf("\n")
}

// printList prints items, truncating after MaxListItems
func (rg *ReportGenerator) printList(items []models.MatchResult, w *errWriter, print func(int, models.MatchResult)) {
	for i, item := range items {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			w.printf("  ... and %d more\n", len(items)-i)
			return
		}
		print(i, item)
	}
}

// generateJSONReport encodes the whole run as indented JSON
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(result)
}

// csvHeaders are the columns of the CSV report
var csvHeaders = []string{
	"status",
	"tier",
	"side",
	"left_row",
	"left_date",
	"left_amount",
	"left_reference",
	"left_description",
	"right_row",
	"right_date",
	"right_amount",
	"right_reference",
	"right_description",
	"amount_difference",
	"strategy",
}

// generateCSVReport writes one line per match result in report order
func (rg *ReportGenerator) generateCSVReport(report *models.MatchReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for i, result := range report.Results {
		if err := csvWriter.Write(csvRecord(result, report.Strategy)); err != nil {
			return fmt.Errorf("failed to write CSV record %d: %w", i+1, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func csvRecord(m models.MatchResult, strategy string) []string {
	record := make([]string, 0, len(csvHeaders))
	record = append(record, string(m.Status))

	if m.IsMatched() {
		record = append(record, m.Tier.String(), "")
	} else {
		record = append(record, "", m.Side.String())
	}

	record = append(record, recordFields(m.Left)...)
	record = append(record, recordFields(m.Right)...)

	difference := ""
	if m.IsMatched() {
		difference = m.Left.Amount.Sub(m.Right.Amount).Abs().StringFixed(2)
	}
	return append(record, difference, strategy)
}

func recordFields(r *models.NormalizedRecord) []string {
	if r == nil {
		return []string{"", "", "", "", ""}
	}
	return []string{
		strconv.Itoa(r.SourceRow),
		r.Date,
		formatAmount(r.Amount),
		r.Reference,
		r.Description,
	}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func displayReference(ref string) string {
	if ref == "" {
		return "(no reference)"
	}
	return ref
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// errWriter keeps the first write error so console sections can be printed
// without checking every call
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
