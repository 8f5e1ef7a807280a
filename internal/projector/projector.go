// Package projector turns raw tables into normalized records ready for
// matching. Rows without a usable date or a positive amount are dropped;
// that is data-quality filtering, not an error. The only failure is a table
// in which no date or amount column can be found.
package projector

import (
	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/normalizer"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// DefaultHeaderOffset converts a zero-based data row index into its 1-based
// spreadsheet row: the header occupies row 1, so data row 0 is row 2.
const DefaultHeaderOffset = 2

// Stats counts what happened to the rows of one table
type Stats struct {
	TotalRows     int `json:"total_rows"`
	Kept          int `json:"kept"`
	DroppedDate   int `json:"dropped_no_date"`
	DroppedAmount int `json:"dropped_no_amount"`
}

// Dropped returns the number of rows filtered out
func (s Stats) Dropped() int {
	return s.DroppedDate + s.DroppedAmount
}

// Projection is the outcome of projecting one table
type Projection struct {
	Dataset   string                    `json:"dataset"`
	Records   []models.NormalizedRecord `json:"records"`
	Detection *detector.Detection       `json:"detection"`
	Stats     Stats                     `json:"stats"`
}

// Projector converts raw tables into normalized records
type Projector struct {
	detector     *detector.Detector
	headerOffset int
	keepOriginal bool
	logger       logger.Logger
}

// Option configures a Projector
type Option func(*Projector)

// WithDetector sets the column detector
func WithDetector(d *detector.Detector) Option {
	return func(p *Projector) {
		if d != nil {
			p.detector = d
		}
	}
}

// WithHeaderOffset changes the row number given to the first data row
func WithHeaderOffset(offset int) Option {
	return func(p *Projector) {
		p.headerOffset = offset
	}
}

// WithOriginalRows controls whether records keep a reference to their raw row
func WithOriginalRows(keep bool) Option {
	return func(p *Projector) {
		p.keepOriginal = keep
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Projector) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProjector creates a projector using the default detector
func NewProjector(opts ...Option) *Projector {
	p := &Projector{
		headerOffset: DefaultHeaderOffset,
		keepOriginal: true,
		logger:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.detector == nil {
		p.detector = detector.NewDetector(detector.WithLogger(p.logger))
	}
	p.logger = p.logger.WithComponent("projector")
	return p
}

// Project resolves the columns of table, honouring hints, and converts
// every row into a NormalizedRecord. Rows are kept in table order and only
// when they carry a date and a positive amount. A date or amount column
// that can be neither detected nor found by hint yields a detection error
// listing the table's columns.
func (p *Projector) Project(table *models.Table, hints *detector.ColumnMapping) (*Projection, error) {
	var given detector.ColumnMapping
	if hints != nil {
		given = *hints
	}

	var missing []string
	for _, f := range []detector.Field{detector.FieldDate, detector.FieldAmount} {
		if col := given.Get(f); col != "" && !table.HasColumn(col) {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, errors.ColumnDetectionError(table.Name, missing, table.Columns).
			WithContext("hints", given)
	}

	for _, f := range []detector.Field{detector.FieldReference, detector.FieldDescription} {
		if col := given.Get(f); col != "" && !table.HasColumn(col) {
			p.logger.WithFields(logger.Fields{
				"table":  table.Name,
				"field":  string(f),
				"column": col,
			}).Warn("Ignoring hint for unknown column")
			given.Set(f, "")
		}
	}

	detection := p.detector.DetectWithHints(table, given)
	if missing := detection.Missing(); len(missing) > 0 {
		return nil, errors.ColumnDetectionError(table.Name, missing, table.Columns)
	}

	projection := &Projection{
		Dataset:   table.Name,
		Records:   make([]models.NormalizedRecord, 0, len(table.Rows)),
		Detection: detection,
		Stats:     Stats{TotalRows: len(table.Rows)},
	}
	mapping := detection.Mapping

	for i, row := range table.Rows {
		record, ok := p.projectRow(row, mapping, i+p.headerOffset, &projection.Stats)
		if ok {
			projection.Records = append(projection.Records, record)
		}
	}
	projection.Stats.Kept = len(projection.Records)

	p.logger.WithFields(logger.Fields{
		"table":          table.Name,
		"rows":           projection.Stats.TotalRows,
		"kept":           projection.Stats.Kept,
		"dropped_date":   projection.Stats.DroppedDate,
		"dropped_amount": projection.Stats.DroppedAmount,
	}).Debug("Table projected")

	return projection, nil
}

func (p *Projector) projectRow(row models.RawRow, mapping detector.ColumnMapping, rowNumber int, stats *Stats) (models.NormalizedRecord, bool) {
	date := normalizer.NormalizeDate(row.Get(mapping.Date))
	if date == "" {
		stats.DroppedDate++
		return models.NormalizedRecord{}, false
	}

	amount := normalizer.RoundAmount(normalizer.NormalizeAmount(row.Get(mapping.Amount)))
	if !amount.IsPositive() {
		stats.DroppedAmount++
		return models.NormalizedRecord{}, false
	}

	record := models.NormalizedRecord{
		Date:      date,
		Amount:    amount,
		SourceRow: rowNumber,
	}
	if mapping.Reference != "" {
		record.Reference = normalizer.ExtractReferenceCode(row.Get(mapping.Reference))
	}
	if mapping.Description != "" {
		record.Description = row.Get(mapping.Description).String()
	}
	if p.keepOriginal {
		record.Original = row
	}

	return record, true
}
