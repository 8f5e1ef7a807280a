// Package detector infers which columns of a raw table hold the date,
// amount, reference and description of each record.
//
// Detection runs in two stages. Column names are first compared against an
// ordered synonym table (see synonyms.yaml); the first synonym that matches
// any column wins, and among columns sharing that name the leftmost wins.
// Date and amount then fall back to inspecting cell contents when no name
// matched. Reference and description are detected by name only.
//
// Example usage:
//
//	d := detector.NewDetector(detector.WithSynonyms(table))
//	detection := d.Detect(rawTable)
//	if detection.Mapping.Date == "" {
//		// ask the user for a mapping
//	}
package detector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/normalizer"
	"golang-pv-reconciliation/pkg/logger"
)

const (
	// DefaultSampleSize is the number of non-empty values inspected per column
	DefaultSampleSize = 10
	// DefaultMinDateHits is the number of sampled values that must parse as dates
	DefaultMinDateHits = 3

	// serialDateFloor is the earliest date a bare number may stand for during
	// content detection. Smaller serials are far more often amounts or counters.
	serialDateFloor = "1990-01-01"
)

// Source records how a field's column was chosen
type Source string

// Detection sources
const (
	SourceHint    Source = "hint"
	SourceName    Source = "name"
	SourceContent Source = "content"
	SourceNone    Source = "none"
)

// ColumnMapping names the column that holds each field. An empty string
// means the field has no column.
type ColumnMapping struct {
	Date        string `json:"date,omitempty" yaml:"date,omitempty"`
	Amount      string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Reference   string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Get returns the column mapped to field
func (m ColumnMapping) Get(field Field) string {
	switch field {
	case FieldDate:
		return m.Date
	case FieldAmount:
		return m.Amount
	case FieldReference:
		return m.Reference
	case FieldDescription:
		return m.Description
	default:
		return ""
	}
}

// Set maps field to column
func (m *ColumnMapping) Set(field Field, column string) {
	switch field {
	case FieldDate:
		m.Date = column
	case FieldAmount:
		m.Amount = column
	case FieldReference:
		m.Reference = column
	case FieldDescription:
		m.Description = column
	}
}

// IsZero reports whether no field is mapped
func (m ColumnMapping) IsZero() bool {
	return m == ColumnMapping{}
}

// ParseColumnMapping parses hints written as "date=Fecha,amount=Importe".
// An empty string yields a nil mapping.
func ParseColumnMapping(s string) (*ColumnMapping, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	mapping := &ColumnMapping{}
	for _, pair := range strings.Split(s, ",") {
		key, column, ok := strings.Cut(pair, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid column hint %q (expected field=column)", strings.TrimSpace(pair))
		}
		field, err := ParseField(key)
		if err != nil {
			return nil, err
		}
		if mapping.Get(field) != "" {
			return nil, fmt.Errorf("field %s given more than once", field)
		}
		mapping.Set(field, column)
	}
	return mapping, nil
}

// Detection is the outcome of detecting the columns of one table
type Detection struct {
	Mapping ColumnMapping    `json:"mapping"`
	Sources map[Field]Source `json:"sources"`
}

// Missing returns the mandatory fields left without a column
func (d *Detection) Missing() []string {
	var missing []string
	if d.Mapping.Date == "" {
		missing = append(missing, string(FieldDate))
	}
	if d.Mapping.Amount == "" {
		missing = append(missing, string(FieldAmount))
	}
	return missing
}

// Detector infers column mappings. It holds no per-table state and is safe
// for concurrent use.
type Detector struct {
	synonyms    *SynonymTable
	sampleSize  int
	minDateHits int
	logger      logger.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithSynonyms replaces the built-in synonym table
func WithSynonyms(table *SynonymTable) Option {
	return func(d *Detector) {
		if table != nil {
			d.synonyms = table
		}
	}
}

// WithLogger sets the logger used for detection diagnostics
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSampling overrides the content sampling parameters
func WithSampling(sampleSize, minDateHits int) Option {
	return func(d *Detector) {
		if sampleSize > 0 {
			d.sampleSize = sampleSize
		}
		if minDateHits > 0 {
			d.minDateHits = minDateHits
		}
	}
}

// NewDetector creates a detector with the built-in synonym table
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		synonyms:    builtinSynonyms,
		sampleSize:  DefaultSampleSize,
		minDateHits: DefaultMinDateHits,
		logger:      logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("detector")
	return d
}

// Synonyms returns the table the detector matches names against
func (d *Detector) Synonyms() *SynonymTable {
	return d.synonyms
}

// Detect infers a column for every field of table
func (d *Detector) Detect(table *models.Table) *Detection {
	return d.DetectWithHints(table, ColumnMapping{})
}

// DetectWithHints infers the fields that hints leave empty. Hinted columns
// are taken as given and are not offered to other fields.
func (d *Detector) DetectWithHints(table *models.Table, hints ColumnMapping) *Detection {
	detection := &Detection{Sources: make(map[Field]Source, len(Fields))}
	taken := make(map[string]bool)

	for _, f := range Fields {
		if col := hints.Get(f); col != "" {
			detection.Mapping.Set(f, col)
			detection.Sources[f] = SourceHint
			taken[col] = true
		}
	}

	normalized := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		normalized[i] = NormalizeColumnName(col)
	}

	for _, f := range Fields {
		if detection.Mapping.Get(f) != "" {
			continue
		}
		if col, ok := d.matchName(table.Columns, normalized, d.synonyms.For(f), taken); ok {
			detection.Mapping.Set(f, col)
			detection.Sources[f] = SourceName
			taken[col] = true
		}
	}

	if detection.Mapping.Date == "" {
		if col, ok := d.dateByContent(table, taken); ok {
			detection.Mapping.Date = col
			detection.Sources[FieldDate] = SourceContent
			taken[col] = true
		}
	}

	if detection.Mapping.Amount == "" {
		if col, ok := d.amountByContent(table, taken); ok {
			detection.Mapping.Amount = col
			detection.Sources[FieldAmount] = SourceContent
			taken[col] = true
		}
	}

	for _, f := range Fields {
		if _, ok := detection.Sources[f]; !ok {
			detection.Sources[f] = SourceNone
		}
	}

	d.logger.WithFields(logger.Fields{
		"table":       table.Name,
		"date":        detection.Mapping.Date,
		"amount":      detection.Mapping.Amount,
		"reference":   detection.Mapping.Reference,
		"description": detection.Mapping.Description,
	}).Debug("Columns detected")

	return detection
}

func (d *Detector) matchName(columns, normalized, synonyms []string, taken map[string]bool) (string, bool) {
	for _, synonym := range synonyms {
		for i, name := range normalized {
			if name == synonym && !taken[columns[i]] {
				return columns[i], true
			}
		}
	}
	return "", false
}

// dateByContent picks the first column whose sampled values contain at
// least minDateHits dates. Bare numbers count only as serial dates on or
// after serialDateFloor.
func (d *Detector) dateByContent(table *models.Table, taken map[string]bool) (string, bool) {
	for _, col := range table.Columns {
		if taken[col] {
			continue
		}

		sampled, hits := 0, 0
		for _, row := range table.Rows {
			if sampled >= d.sampleSize {
				break
			}
			cell := row.Get(col)
			if cell.IsEmpty() {
				continue
			}
			sampled++

			switch cell.Kind() {
			case models.CellDate:
				hits++
			case models.CellText:
				if normalizer.NormalizeDate(cell) != "" {
					hits++
				}
			case models.CellNumber:
				if date := normalizer.NormalizeDate(cell); date != "" && date >= serialDateFloor {
					hits++
				}
			}
		}

		if hits >= d.minDateHits {
			return col, true
		}
	}
	return "", false
}

var nonNumericChars = regexp.MustCompile(`[^\d.\-]`)

// amountByContent prefers a natively numeric column with a nonzero total,
// then a column where more than half of all rows read as numbers once
// non-numeric characters are stripped.
func (d *Detector) amountByContent(table *models.Table, taken map[string]bool) (string, bool) {
	for _, col := range table.Columns {
		if taken[col] {
			continue
		}
		if isNumericColumn(table, col) {
			return col, true
		}
	}

	if len(table.Rows) == 0 {
		return "", false
	}

	for _, col := range table.Columns {
		if taken[col] {
			continue
		}
		numeric := 0
		for _, row := range table.Rows {
			if coercesToNumber(row.Get(col)) {
				numeric++
			}
		}
		if float64(numeric) > float64(len(table.Rows))*0.5 {
			return col, true
		}
	}

	return "", false
}

func isNumericColumn(table *models.Table, col string) bool {
	seen := false
	sum := 0.0
	for _, row := range table.Rows {
		cell := row.Get(col)
		switch cell.Kind() {
		case models.CellEmpty:
			continue
		case models.CellNumber:
			n, _ := cell.Number()
			if n < 0 {
				n = -n
			}
			sum += n
			seen = true
		default:
			return false
		}
	}
	return seen && sum != 0
}

func coercesToNumber(cell models.Cell) bool {
	switch cell.Kind() {
	case models.CellNumber:
		return true
	case models.CellText:
		s, _ := cell.Text()
		stripped := nonNumericChars.ReplaceAllString(s, "")
		if stripped == "" {
			return false
		}
		_, err := strconv.ParseFloat(stripped, 64)
		return err == nil
	default:
		return false
	}
}
