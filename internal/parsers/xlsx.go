package parsers

import (
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// builtinDateFormats are the built-in number format ids that render dates
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// ReadXLSX reads one sheet of a workbook; an empty sheet name selects the
// first sheet. The table is named after the sheet.
func (tr *TableReader) ReadXLSX(r io.Reader, source, sheet string) (*models.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, "not a readable workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ParseError(errors.CodeEmptyInput, source, "", nil)
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !containsSheet(sheets, sheet) {
		return nil, errors.ParseError(errors.CodeSheetNotFound, source, sheet, nil).
			WithContext("sheets", sheets)
	}

	return tr.readSheet(f, source, sheet)
}

// SheetNames lists the sheets of a workbook in order
func (tr *TableReader) SheetNames(r io.Reader, source string) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, "not a readable workbook", err)
	}
	defer f.Close()

	return f.GetSheetList(), nil
}

func (tr *TableReader) readSheet(f *excelize.File, source, sheet string) (*models.Table, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, "sheet "+sheet, err)
	}
	if len(rows) == 0 {
		return nil, errors.ParseError(errors.CodeEmptyInput, source+" ["+sheet+"]", "", nil)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	sr := &sheetReader{
		file:      f,
		sheet:     sheet,
		date1904:  date1904,
		dateStyle: make(map[int]bool),
	}

	table := models.NewTable(sheet, rows[0])
	for i, row := range rows[1:] {
		cells := make([]models.Cell, len(row))
		for col, value := range row {
			cells[col] = sr.cell(col+1, i+2, value)
		}
		table.AppendRow(cells)
	}

	tr.logger.WithFields(logger.Fields{
		"source": source,
		"sheet":  sheet,
		"rows":   table.Len(),
	}).Debug("Sheet read")

	return table, nil
}

// sheetReader converts raw cell values into typed cells
type sheetReader struct {
	file      *excelize.File
	sheet     string
	date1904  bool
	dateStyle map[int]bool
}

func (sr *sheetReader) cell(col, row int, value string) models.Cell {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.EmptyCell()
	}

	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return models.TextCell(value)
	}

	cellType, err := sr.file.GetCellType(sr.sheet, name)
	if err != nil {
		return models.TextCell(value)
	}

	switch cellType {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return models.TextCell(value)
	case excelize.CellTypeBool:
		if value == "1" {
			return models.TextCell("TRUE")
		}
		return models.TextCell("FALSE")
	}

	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return models.TextCell(value)
	}

	if cellType == excelize.CellTypeDate || sr.isDateStyled(name) {
		if t, err := excelize.ExcelDateToTime(number, sr.date1904); err == nil {
			return models.DateCell(t)
		}
	}

	return models.NumberCell(number)
}

func (sr *sheetReader) isDateStyled(cell string) bool {
	styleID, err := sr.file.GetCellStyle(sr.sheet, cell)
	if err != nil || styleID == 0 {
		return false
	}
	if isDate, ok := sr.dateStyle[styleID]; ok {
		return isDate
	}

	isDate := false
	if style, err := sr.file.GetStyle(styleID); err == nil && style != nil {
		isDate = builtinDateFormats[style.NumFmt]
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		}
	}

	sr.dateStyle[styleID] = isDate
	return isDate
}

// isDateFormatCode reports whether a custom number format renders a date.
// Quoted literals and bracketed sections are ignored; a year or day token
// marks a date, while month alone could be minutes.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.ToLower(b.String())
	return strings.ContainsAny(cleaned, "yd")
}

func containsSheet(sheets []string, name string) bool {
	for _, s := range sheets {
		if s == name {
			return true
		}
	}
	return false
}
