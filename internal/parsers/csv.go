package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads a delimited text table. Every non-blank cell becomes a Text
// cell; blank lines become empty rows unless disabled in the configuration.
func (tr *TableReader) ReadCSV(r io.Reader, source string) (*models.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, source, err)
	}

	data, enc, err := decodeText(raw, tr.config.Encoding)
	if err != nil {
		return nil, errors.ParseError(errors.CodeEncodingError, source, err.Error(), err)
	}

	delimiter := tr.config.Delimiter
	if delimiter == 0 {
		delimiter = sniffDelimiter(firstLine(data))
	}

	tr.logger.WithFields(logger.Fields{
		"source":    source,
		"encoding":  enc,
		"delimiter": string(delimiter),
	}).Debug("Reading CSV")

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.ParseError(errors.CodeEmptyInput, source, "", nil)
	}
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, "header row", err)
	}

	table := models.NewTable(DatasetName(source), header)
	prevEnd := recordEndLine(reader, header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, source, err.Error(), err)
		}

		start, _ := reader.FieldPos(0)
		if tr.config.KeepBlankRows {
			for line := prevEnd + 1; line < start; line++ {
				table.AppendRow(nil)
			}
		}
		prevEnd = recordEndLine(reader, record)

		cells := make([]models.Cell, len(record))
		for i, field := range record {
			if tr.config.MaxFieldSize > 0 && len(field) > tr.config.MaxFieldSize {
				return nil, errors.ParseError(errors.CodeInvalidFormat, source,
					fmt.Sprintf("field %d on line %d exceeds %d bytes", i+1, start, tr.config.MaxFieldSize), nil)
			}
			cells[i] = models.TextCell(strings.TrimSpace(field))
		}
		table.AppendRow(cells)
	}

	return table, nil
}

// recordEndLine returns the line on which the record just read ends
func recordEndLine(reader *csv.Reader, record []string) int {
	if len(record) == 0 {
		return 0
	}
	last := len(record) - 1
	line, _ := reader.FieldPos(last)
	return line + strings.Count(record[last], "\n")
}

// decodeText strips a UTF-8 BOM and converts the input to UTF-8
func decodeText(raw []byte, enc Encoding) ([]byte, Encoding, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var decoder *encoding.Decoder
	switch enc {
	case EncodingUTF8:
		if !utf8.Valid(raw) {
			return nil, enc, fmt.Errorf("input is not valid UTF-8")
		}
		return raw, enc, nil
	case EncodingWindows1252:
		decoder = charmap.Windows1252.NewDecoder()
	case EncodingLatin1:
		decoder = charmap.ISO8859_1.NewDecoder()
	default:
		if utf8.Valid(raw) {
			return raw, EncodingUTF8, nil
		}
		enc = EncodingWindows1252
		decoder = charmap.Windows1252.NewDecoder()
	}

	decoded, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return nil, enc, err
	}
	return decoded, enc, nil
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}

// sniffDelimiter picks the candidate occurring most often outside quotes.
// Ties go to the earlier candidate; no candidate at all means a comma.
func sniffDelimiter(line string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
