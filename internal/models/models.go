package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date layout of normalized records
const DateLayout = "2006-01-02"

// CellKind identifies which variant a Cell holds
type CellKind int

const (
	// CellEmpty is a blank or missing value
	CellEmpty CellKind = iota
	// CellText is a string value
	CellText
	// CellNumber is a numeric value
	CellNumber
	// CellDate is a native date/time value
	CellDate
)

// String returns the string representation of CellKind
func (k CellKind) String() string {
	switch k {
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	case CellDate:
		return "date"
	default:
		return "empty"
	}
}

// Cell is a single raw spreadsheet value. It is a closed variant: build it
// with TextCell, NumberCell, DateCell or EmptyCell and inspect it with Kind.
type Cell struct {
	kind   CellKind
	text   string
	number float64
	date   time.Time
}

// TextCell creates a text cell; the empty string yields an empty cell
func TextCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{kind: CellText, text: s}
}

// NumberCell creates a numeric cell; NaN and infinities yield an empty cell
func NumberCell(f float64) Cell {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Cell{}
	}
	return Cell{kind: CellNumber, number: f}
}

// DateCell creates a date cell; the zero time yields an empty cell
func DateCell(t time.Time) Cell {
	if t.IsZero() {
		return Cell{}
	}
	return Cell{kind: CellDate, date: t}
}

// EmptyCell returns an empty cell
func EmptyCell() Cell {
	return Cell{}
}

// Kind returns the variant held by the cell
func (c Cell) Kind() CellKind { return c.kind }

// IsEmpty reports whether the cell holds no value
func (c Cell) IsEmpty() bool { return c.kind == CellEmpty }

// Text returns the string value of a text cell
func (c Cell) Text() (string, bool) { return c.text, c.kind == CellText }

// Number returns the value of a numeric cell
func (c Cell) Number() (float64, bool) { return c.number, c.kind == CellNumber }

// Date returns the value of a date cell
func (c Cell) Date() (time.Time, bool) { return c.date, c.kind == CellDate }

// String renders the cell as display text. Integral numbers render without
// a fractional part, dates as YYYY-MM-DD.
func (c Cell) String() string {
	switch c.kind {
	case CellText:
		return c.text
	case CellNumber:
		return strconv.FormatFloat(c.number, 'f', -1, 64)
	case CellDate:
		return c.date.Format(DateLayout)
	default:
		return ""
	}
}

// MarshalJSON encodes empty cells as null, numbers as JSON numbers and
// everything else as strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case CellEmpty:
		return []byte("null"), nil
	case CellNumber:
		return json.Marshal(c.number)
	default:
		return json.Marshal(c.String())
	}
}

// UnmarshalJSON decodes null, strings, numbers and booleans
func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*c = EmptyCell()
	case string:
		*c = TextCell(v)
	case float64:
		*c = NumberCell(v)
	case bool:
		*c = TextCell(strconv.FormatBool(v))
	default:
		return fmt.Errorf("unsupported cell value %s", string(data))
	}
	return nil
}

// RawRow maps column names to cell values. Column order lives on the
// owning Table.
type RawRow map[string]Cell

// Get returns the cell for column, or an empty cell when absent
func (r RawRow) Get(column string) Cell {
	if r == nil {
		return EmptyCell()
	}
	return r[column]
}

// Table is an ordered set of named columns with positional rows. Row i is
// data row i; the header is not part of Rows.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []RawRow `json:"rows"`
}

// NewTable creates an empty table. Header names are trimmed; blank names
// become "Unnamed: N" and repeated names get a ".N" suffix so that every
// column stays addressable. A suffixed name that is itself taken is
// suffixed again ("Monto.1.1").
func NewTable(name string, header []string) *Table {
	counts := make(map[string]int, len(header))
	columns := make([]string, len(header))

	for i, h := range header {
		col := strings.TrimSpace(h)
		if col == "" {
			col = fmt.Sprintf("Unnamed: %d", i)
		}
		for n := counts[col]; n > 0; n = counts[col] {
			counts[col] = n + 1
			col = fmt.Sprintf("%s.%d", col, n)
		}
		counts[col] = 1
		columns[i] = col
	}

	return &Table{Name: name, Columns: columns}
}

// AppendRow adds a row from positional values. Missing trailing values are
// empty; values beyond the last column are dropped.
func (t *Table) AppendRow(values []Cell) {
	row := make(RawRow, len(t.Columns))
	for i, col := range t.Columns {
		if i < len(values) {
			row[col] = values[i]
		} else {
			row[col] = EmptyCell()
		}
	}
	t.Rows = append(t.Rows, row)
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Column returns every cell of the named column in row order
func (t *Table) Column(name string) []Cell {
	cells := make([]Cell, len(t.Rows))
	for i, row := range t.Rows {
		cells[i] = row.Get(name)
	}
	return cells
}

// NormalizedRecord is one row of a dataset in canonical, comparable form
type NormalizedRecord struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	Description string          `json:"description,omitempty"`
	SourceRow   int             `json:"source_row"`
	Original    RawRow          `json:"original,omitempty"`
}

// Eligible reports whether the record may take part in matching
func (r NormalizedRecord) Eligible() bool {
	return r.Date != "" && r.Amount.IsPositive()
}

// String returns a compact representation of the record
func (r NormalizedRecord) String() string {
	return fmt.Sprintf("Record{Row: %d, Date: %s, Amount: %s, Reference: %s}",
		r.SourceRow, r.Date, r.Amount.StringFixed(2), r.Reference)
}
