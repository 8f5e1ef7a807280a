// Package parsers turns spreadsheet and delimited text files into raw
// tables. Nothing here interprets values: CSV cells are text, XLSX cells
// keep the type stored in the workbook, and the first row is the header.
//
// Supported inputs:
//   - .csv and .txt: delimiter sniffed among comma, semicolon, tab and pipe;
//     UTF-8 with or without BOM, falling back to Windows-1252
//   - .xlsx and .xlsm: any sheet by name, the first sheet by default
//
// Example usage:
//
//	table, err := parsers.ReadTable("bank.xlsx", "")
//	left, right, err := parsers.ReadWorkbookPair("monthly.xlsx")
package parsers

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// Format identifies a supported input file type
type Format string

// Supported input formats
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat returns the format implied by a file name's extension
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", errors.FileError(errors.CodeUnsupportedFormat, name, nil)
	}
}

// DatasetName derives a dataset name from a file name
func DatasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TableReader reads files into raw tables
type TableReader struct {
	config *ParseConfig
	logger logger.Logger
}

// NewTableReader creates a new TableReader with the given configuration
func NewTableReader(config *ParseConfig, log logger.Logger) (*TableReader, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", err.Error(), err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &TableReader{
		config: config,
		logger: log.WithComponent("parsers"),
	}, nil
}

// OpenFile opens a file, mapping failures onto file errors
func (tr *TableReader) OpenFile(path string) (*os.File, error) {
	tr.logger.WithField("file_path", path).Debug("Opening file")

	file, err := os.Open(path)
	if err != nil {
		tr.logger.WithError(err).WithField("file_path", path).Error("Failed to open file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, path, err)
	}

	if info, statErr := file.Stat(); statErr == nil && info.IsDir() {
		file.Close()
		return nil, errors.FileError(errors.CodeDirectoryError, path, nil)
	}

	return file, nil
}

// ReadFile reads one table from path. sheet selects a workbook sheet and is
// ignored for CSV files.
func (tr *TableReader) ReadFile(path, sheet string) (*models.Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	file, err := tr.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return tr.read(file, format, path, DatasetName(path), sheet)
}

// Read reads one table from r, using name to pick the format
func (tr *TableReader) Read(r io.Reader, name, sheet string) (*models.Table, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	return tr.read(r, format, name, DatasetName(name), sheet)
}

func (tr *TableReader) read(r io.Reader, format Format, source, dataset, sheet string) (*models.Table, error) {
	var (
		table *models.Table
		err   error
	)

	switch format {
	case FormatXLSX:
		table, err = tr.ReadXLSX(r, source, sheet)
		if table != nil && sheet == "" {
			table.Name = dataset
		}
	default:
		table, err = tr.ReadCSV(r, source)
		if table != nil {
			table.Name = dataset
		}
	}
	if err != nil {
		return nil, err
	}

	tr.logger.WithFields(logger.Fields{
		"source":  source,
		"table":   table.Name,
		"columns": len(table.Columns),
		"rows":    table.Len(),
	}).Debug("Table read")

	return table, nil
}

// ReadWorkbookPair reads the first two sheets of a workbook as the left and
// right datasets, each named after its sheet
func (tr *TableReader) ReadWorkbookPair(path string) (*models.Table, *models.Table, error) {
	if format, err := DetectFormat(path); err != nil {
		return nil, nil, err
	} else if format != FormatXLSX {
		return nil, nil, errors.FileError(errors.CodeUnsupportedFormat, path, nil).
			WithSuggestion("a workbook with two sheets (.xlsx or .xlsm) is required")
	}

	data, err := tr.readAll(path)
	if err != nil {
		return nil, nil, err
	}

	sheets, err := tr.SheetNames(bytes.NewReader(data), path)
	if err != nil {
		return nil, nil, err
	}
	if len(sheets) < 2 {
		return nil, nil, errors.ParseError(errors.CodeSheetNotFound, path, "second sheet", nil).
			WithSuggestion("the workbook must contain the left dataset on its first sheet and the right dataset on its second")
	}

	left, err := tr.ReadXLSX(bytes.NewReader(data), path, sheets[0])
	if err != nil {
		return nil, nil, err
	}
	right, err := tr.ReadXLSX(bytes.NewReader(data), path, sheets[1])
	if err != nil {
		return nil, nil, err
	}

	return left, right, nil
}

func (tr *TableReader) readAll(path string) ([]byte, error) {
	file, err := tr.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, path, err)
	}
	return data, nil
}

// ReadTable reads a table from path with the default configuration
func ReadTable(path, sheet string) (*models.Table, error) {
	tr, err := NewTableReader(nil, nil)
	if err != nil {
		return nil, err
	}
	return tr.ReadFile(path, sheet)
}

// ReadWorkbookPair reads the first two sheets of a workbook with the default configuration
func ReadWorkbookPair(path string) (*models.Table, *models.Table, error) {
	tr, err := NewTableReader(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return tr.ReadWorkbookPair(path)
}
