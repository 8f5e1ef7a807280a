package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and typed errors
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely validates its inputs, generates the report and maps
// failures onto reconciler errors
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.ReconciliationResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.GenerateReport(result, writer); err != nil {
		wrapped := srg.wrapGenerationError(err)
		srg.logger.WithError(wrapped).Error("Report generation failed")
		return wrapped
	}

	srg.logger.WithField("results", len(result.Report.Results)).Debug("Report generation completed")
	return nil
}

// WriteReportFile writes the report to path. The report is generated into a
// temporary file next to path and renamed over it, so a failed run never
// leaves a truncated report behind.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.ReconciliationResult, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return srg.fileError(path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return srg.fileError(path, err)
	}
	defer os.Remove(tmp.Name())

	if err := srg.GenerateReportSafely(result, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return srg.fileError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return srg.fileError(path, err)
	}

	srg.logger.WithField("file_path", path).Info("Report written")
	return nil
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil || result.Report == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a valid reconciliation result")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	return nil
}

func (srg *SafeReportGenerator) fileError(path string, err error) error {
	code := errors.CodeDirectoryError
	if os.IsPermission(err) {
		code = errors.CodeFilePermission
	}
	srg.logger.WithError(err).WithField("file_path", path).Error("Failed to write report")
	return errors.FileError(code, path, err)
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case nil:
		return "none"
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
