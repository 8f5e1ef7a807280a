// Package store keeps a history of reconciliation runs in SQLite.
//
// Each run is one row of the runs table: the summary counts and totals as
// columns for listing, and the complete result as JSON for retrieval.
//
// Example usage:
//
//	runs, err := store.Open(ctx, "runs.db", log)
//	if err != nil {
//		return err
//	}
//	defer runs.Close()
//	err = runs.Save(ctx, result)
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

const (
	// DefaultListLimit is used when List is called without a positive limit
	DefaultListLimit = 20
	// MaxListLimit caps the number of runs returned by List
	MaxListLimit = 500

	// timeLayout has a fixed width so stored times sort as text
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// RunInfo is the listing view of a stored run
type RunInfo struct {
	ID              uuid.UUID       `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	LeftName        string          `json:"left_name"`
	RightName       string          `json:"right_name"`
	Strategy        string          `json:"strategy,omitempty"`
	LeftRecords     int             `json:"left_records"`
	RightRecords    int             `json:"right_records"`
	Matched         int             `json:"matched"`
	Exact           int             `json:"exact"`
	DateReference   int             `json:"date_reference"`
	DateAmount      int             `json:"date_amount"`
	UnmatchedLeft   int             `json:"unmatched_left"`
	UnmatchedRight  int             `json:"unmatched_right"`
	MatchedAmount   decimal.Decimal `json:"matched_amount"`
	UnmatchedAmount decimal.Decimal `json:"unmatched_amount"`
}

// Run is a stored run with its complete result
type Run struct {
	RunInfo
	Result *reconciler.ReconciliationResult `json:"result"`
}

// RunStore persists reconciliation runs
type RunStore struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (or creates) the SQLite database at dsn and ensures the runs
// table exists. Pass ":memory:" for an in-memory database.
func Open(ctx context.Context, dsn string, log logger.Logger) (*RunStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, dsn, err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases shared between queries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStorageUnavailable, dsn, fmt.Errorf("set wal mode: %w", err))
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStorageUnavailable, dsn, fmt.Errorf("create tables: %w", err))
	}

	log.WithComponent("store").WithField("dsn", dsn).Debug("Run store opened")

	return &RunStore{db: db, logger: log.WithComponent("store")}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			left_name TEXT NOT NULL,
			right_name TEXT NOT NULL,
			left_records INTEGER NOT NULL,
			right_records INTEGER NOT NULL,
			matched INTEGER NOT NULL,
			exact INTEGER NOT NULL,
			date_reference INTEGER NOT NULL,
			date_amount INTEGER NOT NULL,
			unmatched_left INTEGER NOT NULL,
			unmatched_right INTEGER NOT NULL,
			matched_amount TEXT NOT NULL,
			unmatched_amount TEXT NOT NULL,
			report_json TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return addColumn(ctx, db, "runs", "strategy", "TEXT NOT NULL DEFAULT ''")
}

// addColumn adds a column to tables created before it existed
func addColumn(ctx context.Context, db *sql.DB, table, column, decl string) error {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	rows.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// Close closes the database
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Save stores a completed run. A run without an ID gets a new one, and a
// zero ProcessedAt is set to the current time.
func (s *RunStore) Save(ctx context.Context, result *reconciler.ReconciliationResult) error {
	if result == nil || result.Report == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	}
	if result.RunID == uuid.Nil {
		result.RunID = uuid.New()
	}
	if result.ProcessedAt.IsZero() {
		result.ProcessedAt = time.Now()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode run", err)
	}

	summary := result.Report.Summary
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs
		(id, created_at, left_name, right_name, left_records, right_records,
		 matched, exact, date_reference, date_amount, unmatched_left, unmatched_right,
		 matched_amount, unmatched_amount, strategy, report_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		result.RunID.String(),
		result.ProcessedAt.UTC().Format(timeLayout),
		summary.LeftName,
		summary.RightName,
		summary.LeftRecords,
		summary.RightRecords,
		summary.TotalMatched,
		summary.ExactMatches,
		summary.DateReferenceMatches,
		summary.DateAmountMatches,
		summary.UnmatchedLeft,
		summary.UnmatchedRight,
		summary.MatchedAmount.String(),
		summary.UnmatchedAmount.String(),
		result.Report.Strategy,
		string(payload),
	)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "insert run "+result.RunID.String(), err)
	}

	s.logger.WithField("run_id", result.RunID).Debug("Run saved")
	return nil
}

const infoColumns = `id, created_at, left_name, right_name, left_records, right_records,
	matched, exact, date_reference, date_amount, unmatched_left, unmatched_right,
	matched_amount, unmatched_amount, strategy`

// Get loads a stored run with its complete result
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+infoColumns+", report_json FROM runs WHERE id = ?", id.String())

	var (
		run     Run
		payload string
	)
	err := scanInfo(row, &run.RunInfo, &payload)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeRunNotFound, id.String(), nil)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "select run "+id.String(), err)
	}

	run.Result = &reconciler.ReconciliationResult{}
	if err := json.Unmarshal([]byte(payload), run.Result); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "decode run "+id.String(), err)
	}

	return &run, nil
}

// List returns the most recent runs first
func (s *RunStore) List(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+infoColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list runs", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var info RunInfo
		if err := scanInfo(rows, &info); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "scan run", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list runs", err)
	}

	return runs, nil
}

// Delete removes a stored run
func (s *RunStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id.String())
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "delete run "+id.String(), err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "delete run "+id.String(), err)
	}
	if affected == 0 {
		return errors.StorageError(errors.CodeRunNotFound, id.String(), nil)
	}

	s.logger.WithField("run_id", id).Debug("Run deleted")
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInfo(sc scanner, info *RunInfo, extra ...interface{}) error {
	var (
		id, createdAt            string
		matchedAmt, unmatchedAmt string
	)

	dest := []interface{}{
		&id, &createdAt, &info.LeftName, &info.RightName,
		&info.LeftRecords, &info.RightRecords,
		&info.Matched, &info.Exact, &info.DateReference, &info.DateAmount,
		&info.UnmatchedLeft, &info.UnmatchedRight,
		&matchedAmt, &unmatchedAmt, &info.Strategy,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	var err error
	if info.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("parse id: %w", err)
	}
	if info.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	if info.MatchedAmount, err = decimal.NewFromString(matchedAmt); err != nil {
		return fmt.Errorf("parse matched_amount: %w", err)
	}
	if info.UnmatchedAmount, err = decimal.NewFromString(unmatchedAmt); err != nil {
		return fmt.Errorf("parse unmatched_amount: %w", err)
	}

	return nil
}
