package config

import (
	"fmt"
	"strings"

	"golang-pv-reconciliation/internal/api"
	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/matcher"
	"golang-pv-reconciliation/internal/parsers"
	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/internal/reporter"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// CreateParseConfig creates a table parsing configuration. An empty
// delimiter means the delimiter is sniffed from the header line.
func CreateParseConfig(delimiter, encoding string) (*parsers.ParseConfig, error) {
	config := parsers.DefaultParseConfig()

	switch delimiter {
	case "":
	case `\t`, "tab":
		config.Delimiter = '\t'
	default:
		runes := []rune(delimiter)
		if len(runes) != 1 {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", delimiter, nil).
				WithSuggestion("use a single character such as ',' or ';'")
		}
		config.Delimiter = runes[0]
	}

	enc, err := parsers.ParseEncoding(encoding)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "encoding", encoding, err)
	}
	config.Encoding = enc

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parse config", nil, err)
	}
	return config, nil
}

// CreateMatchingConfig creates the matching configuration for a strategy name
func CreateMatchingConfig(strategy string) (*matcher.MatchingConfig, error) {
	s, err := matcher.ParseStrategy(strategy)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "strategy", strategy, err).
			WithSuggestion("use 'tier-first' or 'record-first'")
	}

	config := matcher.DefaultMatchingConfig()
	config.Strategy = s
	return config, nil
}

// CreateReconcilerConfig creates the reconciliation service configuration
func CreateReconcilerConfig(startDate, endDate string, detectDuplicates bool) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	config.StartDate = strings.TrimSpace(startDate)
	config.EndDate = strings.TrimSpace(endDate)
	config.DetectDuplicates = detectDuplicates

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the output format
func CreateReportConfig(format string, maxListItems int) (*reporter.ReportConfig, error) {
	outputFormat, err := reporter.ParseOutputFormat(format)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "format", format, err).
			WithSuggestion("use console, json or csv")
	}

	config := reporter.DefaultReportConfig()
	config.Format = outputFormat
	if maxListItems >= 0 {
		config.MaxListItems = maxListItems
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report config", nil, err)
	}
	return config, nil
}

// CreateLoggerConfig creates the CLI logger configuration. Logs always go
// to stderr so reports on stdout stay clean; verbose forces debug level.
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Output = logger.StderrOutput

	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
		config.CallerInfo = true
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", level+"/"+format, err)
	}
	return config, nil
}

// CreateServerConfig creates the API server configuration
func CreateServerConfig(addr string, maxUploadMB int) (*api.Config, error) {
	config := api.DefaultConfig()
	if addr != "" {
		config.Addr = addr
	}
	if maxUploadMB > 0 {
		config.MaxBodyBytes = int64(maxUploadMB) << 20
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseColumnHints parses a --left-columns or --right-columns value
func ParseColumnHints(flag, value string) (*detector.ColumnMapping, error) {
	hints, err := detector.ParseColumnMapping(value)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, flag, value, err).
			WithSuggestion("write hints as date=COLUMN,amount=COLUMN,reference=COLUMN,description=COLUMN")
	}
	return hints, nil
}

// CreateDetector builds a column detector, extending the built-in synonyms
// with the YAML file at synonymsPath when one is given. Zero sampling values
// keep the detector defaults.
func CreateDetector(synonymsPath string, sampleSize, minDateHits int, log logger.Logger) (*detector.Detector, error) {
	if sampleSize < 0 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sample-size", sampleSize, nil).
			WithSuggestion("use a positive number of sampled values")
	}
	if minDateHits < 0 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "min-date-hits", minDateHits, nil).
			WithSuggestion("use a positive number of date hits")
	}
	effectiveSample, effectiveHits := sampleSize, minDateHits
	if effectiveSample == 0 {
		effectiveSample = detector.DefaultSampleSize
	}
	if effectiveHits == 0 {
		effectiveHits = detector.DefaultMinDateHits
	}
	if effectiveHits > effectiveSample {
		return nil, errors.ConfigurationError(errors.CodeConfigConflict, "min-date-hits", minDateHits, nil).
			WithSuggestion(fmt.Sprintf("min-date-hits cannot exceed sample-size (%d)", effectiveSample))
	}

	opts := []detector.Option{
		detector.WithLogger(log),
		detector.WithSampling(sampleSize, minDateHits),
	}

	if synonymsPath != "" {
		table, err := detector.LoadSynonymFile(synonymsPath)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "synonyms", synonymsPath, err)
		}
		opts = append(opts, detector.WithSynonyms(table))
	}

	return detector.NewDetector(opts...), nil
}
