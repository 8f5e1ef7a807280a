package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

// handleReconcilerError handles ReconcilerError with detailed context
func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if err.Category == errors.CategoryDetection {
		h.printDetectionDetails(err)
	} else if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range sortedKeys(err.Context) {
			fmt.Fprintf(h.out, "  %s: %s\n", key, formatContextValue(err.Context[key]))
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// printDetectionDetails lists the columns a user can map by hand
func (h *CLIErrorHandler) printDetectionDetails(err *errors.ReconcilerError) {
	if dataset, ok := err.Context[errors.ContextDataset].(string); ok {
		fmt.Fprintf(h.out, "\nDataset: %s\n", dataset)
	}
	if missing := errors.MissingFields(err); len(missing) > 0 {
		fmt.Fprintf(h.out, "Missing: %s\n", strings.Join(missing, ", "))
	}
	if columns := errors.AvailableColumns(err); len(columns) > 0 {
		fmt.Fprintf(h.out, "Available columns:\n")
		for _, col := range columns {
			fmt.Fprintf(h.out, "  - %s\n", col)
		}
	}
}

// handleGenericError handles non-ReconcilerError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// Usage errors from cobra (unknown flag, wrong argument count)
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Inputs must be .csv, .txt, .xlsx or .xlsm files
• Use absolute paths if the working directory is unclear`

	case errors.CategoryParse:
		return `Parse error help:
• The first row (or the first row of the sheet) must hold column names
• Pass --delimiter if the CSV separator is not ',', ';', tab or '|'
• Pass --encoding windows-1252 for files exported by older spreadsheet tools
• Check the sheet name with 'reconciler detect FILE --sheet NAME'`

	case errors.CategoryDetection:
		return `Column detection help:
• Run 'reconciler detect FILE' to see what was found
• Map columns by hand with --left-columns or --right-columns,
  e.g. --left-columns date=Fecha,amount=Importe
• Add your column names to a synonyms file and pass --synonyms`

	case errors.CategoryValidation:
		return `Validation error help:
• Dates on the command line use YYYY-MM-DD
• Run IDs are UUIDs as printed by 'reconciler runs list'`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'reconciler reconcile --help' to see all available options`

	case errors.CategoryStorage:
		return `Run history help:
• Check that the --db path is writable
• List stored runs with 'reconciler runs list --db FILE'`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Run again with --verbose for the detailed log
• Check that both datasets hold dated records with positive amounts`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler COMMAND --help' for command-specific help`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatContextValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return "-"
	case []string:
		return strings.Join(value, ", ")
	default:
		return fmt.Sprintf("%v", value)
	}
}
