// Package reconciler runs one reconciliation end to end: project both raw
// tables, apply the optional date window, match, and return an explicit
// result value. The service holds configuration only; nothing from one run
// is visible to the next.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/matcher"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/projector"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// StartDate and EndDate bound an inclusive YYYY-MM-DD window; empty
	// means unbounded
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`

	// DetectDuplicates reports records sharing date, reference and amount
	DetectDuplicates bool `json:"detect_duplicates"`

	// KeepOriginalRows keeps the raw row on every projected record
	KeepOriginalRows bool `json:"keep_original_rows"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		DetectDuplicates: true,
		KeepOriginalRows: true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for _, bound := range []struct {
		field string
		value string
	}{
		{"start_date", c.StartDate},
		{"end_date", c.EndDate},
	} {
		if bound.value == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, bound.value); err != nil {
			return errors.ValidationError(errors.CodeInvalidDate, bound.field, bound.value, err)
		}
	}

	if c.StartDate != "" && c.EndDate != "" && c.StartDate > c.EndDate {
		return errors.ConfigurationError(errors.CodeConfigConflict, "start_date",
			fmt.Sprintf("%s is after end_date %s", c.StartDate, c.EndDate), nil)
	}

	return nil
}

// HasWindow reports whether a date window is configured
func (c *Config) HasWindow() bool {
	return c.StartDate != "" || c.EndDate != ""
}

// Source is one side of a reconciliation request
type Source struct {
	Name  string                  `json:"name"`
	Table *models.Table           `json:"-"`
	Hints *detector.ColumnMapping `json:"hints,omitempty"`
}

// DisplayName returns the dataset name used in reports
func (s Source) DisplayName(fallback string) string {
	if s.Name != "" {
		return s.Name
	}
	if s.Table != nil && s.Table.Name != "" {
		return s.Table.Name
	}
	return fallback
}

// ReconciliationRequest represents a request for reconciliation
type ReconciliationRequest struct {
	Left  Source `json:"left"`
	Right Source `json:"right"`

	// Strategy overrides the service's matching strategy for this request
	Strategy *matcher.Strategy `json:"strategy,omitempty"`
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if r.Left.Table == nil {
		return errors.ValidationError(errors.CodeMissingField, "left", nil, nil)
	}
	if r.Right.Table == nil {
		return errors.ValidationError(errors.CodeMissingField, "right", nil, nil)
	}
	if r.Strategy != nil {
		config := matcher.MatchingConfig{Strategy: *r.Strategy}
		if err := config.Validate(); err != nil {
			return errors.ValidationError(errors.CodeInvalidRequest, "strategy", int(*r.Strategy), err)
		}
	}
	return nil
}

// SideResult describes what happened to one input dataset
type SideResult struct {
	Dataset     string                   `json:"dataset"`
	Detection   *detector.Detection      `json:"detection"`
	Stats       projector.Stats          `json:"stats"`
	OutOfWindow int                      `json:"out_of_window,omitempty"`
	Duplicates  []matcher.DuplicateGroup `json:"duplicates,omitempty"`
}

// ReconciliationResult contains the complete results of reconciliation
type ReconciliationResult struct {
	RunID       uuid.UUID           `json:"run_id"`
	Report      *models.MatchReport `json:"report"`
	Left        *SideResult         `json:"left"`
	Right       *SideResult         `json:"right"`
	Warnings    []string            `json:"warnings,omitempty"`
	ProcessedAt time.Time           `json:"processed_at"`
	Duration    time.Duration       `json:"duration"`
}

// ReconciliationService orchestrates the complete reconciliation process
type ReconciliationService struct {
	projector      *projector.Projector
	matchingEngine *matcher.MatchingEngine
	config         *Config
	logger         logger.Logger
	detector       *detector.Detector
}

// Option configures a ReconciliationService
type Option func(*ReconciliationService)

// WithLogger sets the service logger
func WithLogger(l logger.Logger) Option {
	return func(rs *ReconciliationService) {
		if l != nil {
			rs.logger = l
		}
	}
}

// WithDetector sets the column detector, e.g. one built from a custom synonym table
func WithDetector(d *detector.Detector) Option {
	return func(rs *ReconciliationService) {
		rs.detector = d
	}
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(matchingConfig *matcher.MatchingConfig, config *Config, opts ...Option) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	engine := matcher.NewMatchingEngine(matchingConfig)
	if err := engine.ValidateConfiguration(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "strategy", engine.Config.Strategy, err)
	}

	rs := &ReconciliationService{
		config: config,
		logger: logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(rs)
	}
	if rs.detector == nil {
		rs.detector = detector.NewDetector(detector.WithLogger(rs.logger))
	}

	rs.projector = rs.newProjector()
	rs.matchingEngine = engine.WithLogger(rs.logger)

	return rs, nil
}

// ProcessReconciliation projects both sides of the request, applies the
// configured date window and matches the surviving records. A side whose
// date or amount column cannot be resolved fails the whole run with a
// detection error carrying that side's column names.
func (rs *ReconciliationService) ProcessReconciliation(ctx context.Context, request *ReconciliationRequest) (*ReconciliationResult, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	leftName := request.Left.DisplayName("left")
	rightName := request.Right.DisplayName("right")

	op := logger.NewOperationLogger("reconciliation", rs.logger).
		WithField("left", leftName).
		WithField("right", rightName)

	result := &ReconciliationResult{
		RunID:       uuid.New(),
		ProcessedAt: time.Now().UTC(),
	}
	op.WithField("run_id", result.RunID.String())

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeCancelled, "projection", err)
	}

	// Step 1: project both tables
	left, right, err := rs.projectSources(request, leftName, rightName)
	if err != nil {
		op.Error(err, "Projection failed")
		return nil, err
	}
	op.Step("projected", logger.Fields{
		"left_records":  len(left.Records),
		"right_records": len(right.Records),
	})

	result.Left = newSideResult(leftName, left)
	result.Right = newSideResult(rightName, right)

	// Step 2: date window
	leftRecords, rightRecords := left.Records, right.Records
	if rs.config.HasWindow() {
		leftRecords, result.Left.OutOfWindow = filterByDateWindow(leftRecords, rs.config.StartDate, rs.config.EndDate)
		rightRecords, result.Right.OutOfWindow = filterByDateWindow(rightRecords, rs.config.StartDate, rs.config.EndDate)
		op.Step("date window applied", logger.Fields{
			"start":          rs.config.StartDate,
			"end":            rs.config.EndDate,
			"left_excluded":  result.Left.OutOfWindow,
			"right_excluded": result.Right.OutOfWindow,
		})
	}

	// Step 3: duplicate diagnostics
	if rs.config.DetectDuplicates {
		result.Left.Duplicates = matcher.DetectDuplicates(leftRecords)
		result.Right.Duplicates = matcher.DetectDuplicates(rightRecords)
		for _, side := range []*SideResult{result.Left, result.Right} {
			for _, group := range side.Duplicates {
				warning := fmt.Sprintf("%s: rows %v share key %s", side.Dataset, group.SourceRows, group.Key)
				result.Warnings = append(result.Warnings, warning)
				op.Warning("Duplicate records", logger.Fields{"dataset": side.Dataset, "key": group.Key})
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeCancelled, "matching", err)
	}

	// Step 4: match
	engine := rs.matchingEngine
	if request.Strategy != nil && *request.Strategy != engine.Config.Strategy {
		engine = matcher.NewMatchingEngine(&matcher.MatchingConfig{Strategy: *request.Strategy}).WithLogger(rs.logger)
	}
	result.Report = engine.Reconcile(leftRecords, rightRecords, leftName, rightName)
	if !result.Report.Summary.Balanced() {
		err := errors.ReconciliationError(errors.CodeInvariantBroken, "matching", nil).
			WithContext("summary", result.Report.Summary)
		op.Error(err, "Reconciliation produced an unbalanced report")
		return nil, err
	}

	result.Duration = time.Since(result.ProcessedAt)

	op.WithField("matched", result.Report.Summary.TotalMatched).
		WithField("match_rate", fmt.Sprintf("%.2f", result.Report.Summary.MatchRate)).
		Success("Reconciliation completed")

	return result, nil
}

// Reconcile matches two record lists that were projected elsewhere
func (rs *ReconciliationService) Reconcile(left, right []models.NormalizedRecord, leftName, rightName string) *models.MatchReport {
	return rs.matchingEngine.Reconcile(left, right, leftName, rightName)
}

// Project projects a single table with the service's detector
func (rs *ReconciliationService) Project(table *models.Table, hints *detector.ColumnMapping) (*projector.Projection, error) {
	return rs.projector.Project(table, hints)
}

// UpdateConfiguration updates the service configuration
func (rs *ReconciliationService) UpdateConfiguration(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	rs.config = config
	rs.projector = rs.newProjector()
	return nil
}

// GetConfiguration returns the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}

func (rs *ReconciliationService) newProjector() *projector.Projector {
	return projector.NewProjector(
		projector.WithDetector(rs.detector),
		projector.WithOriginalRows(rs.config.KeepOriginalRows),
		projector.WithLogger(rs.logger),
	)
}

func newSideResult(name string, p *projector.Projection) *SideResult {
	return &SideResult{
		Dataset:   name,
		Detection: p.Detection,
		Stats:     p.Stats,
	}
}
