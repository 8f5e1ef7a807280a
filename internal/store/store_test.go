package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(row int, date, amount, ref string) models.NormalizedRecord {
	return models.NormalizedRecord{
		Date:      date,
		Amount:    decimal.RequireFromString(amount),
		Reference: ref,
		SourceRow: row,
	}
}

func newResult(processedAt time.Time) *reconciler.ReconciliationResult {
	results := []models.MatchResult{
		models.NewMatched(record(2, "2024-01-05", "100", "LOG10"), record(2, "2024-01-05", "100", "PV010"),
			models.TierDateAmount),
		models.NewUnmatched(models.SideLeft, record(3, "2024-01-06", "20.50", "")),
	}

	report := models.NewMatchReport("bank", "ledger", 2, 1, results)
	report.Strategy = "record-first"

	return &reconciler.ReconciliationResult{
		Report:      report,
		Warnings:    []string{"bank: duplicate rows 2, 4"},
		ProcessedAt: processedAt,
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := newResult(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))
	require.NoError(t, s.Save(ctx, result))
	require.NotEqual(t, uuid.Nil, result.RunID, "Save should assign a run id")

	run, err := s.Get(ctx, result.RunID)
	require.NoError(t, err)

	assert.Equal(t, result.RunID, run.ID)
	assert.True(t, run.CreatedAt.Equal(result.ProcessedAt))
	assert.Equal(t, "bank", run.LeftName)
	assert.Equal(t, "ledger", run.RightName)
	assert.Equal(t, "record-first", run.Strategy)
	assert.Equal(t, 2, run.LeftRecords)
	assert.Equal(t, 1, run.RightRecords)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 0, run.Exact)
	assert.Equal(t, 1, run.DateAmount)
	assert.Equal(t, 1, run.UnmatchedLeft)
	assert.Equal(t, 0, run.UnmatchedRight)
	assert.True(t, run.MatchedAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, run.UnmatchedAmount.Equal(decimal.RequireFromString("20.5")))

	require.NotNil(t, run.Result)
	require.NotNil(t, run.Result.Report)
	assert.Equal(t, result.Warnings, run.Result.Warnings)
	require.Len(t, run.Result.Report.Results, 2)
	assert.Equal(t, models.TierDateAmount, run.Result.Report.Results[0].Tier)
	assert.Equal(t, "PV010", run.Result.Report.Results[0].Right.Reference)
	assert.Equal(t, models.SideLeft, run.Result.Report.Results[1].Side)
	assert.True(t, run.Result.Report.Summary.Balanced())
}

func TestSaveKeepsExistingID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := newResult(time.Now())
	id := uuid.New()
	result.RunID = id

	require.NoError(t, s.Save(ctx, result))
	assert.Equal(t, id, result.RunID)

	err := s.Save(ctx, result)
	assert.True(t, errors.IsCode(err, errors.CodeQueryFailed), "duplicate id should fail, got %v", err)
}

func TestSaveNilResult(t *testing.T) {
	s := openTestStore(t)

	err := s.Save(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.CodeMissingField))
}

func TestGetMissingRun(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRunNotFound))
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		result := newResult(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, s.Save(ctx, result))
		ids = append(ids, result.RunID)
	}

	runs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, ids[2], limited[0].ID)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := newResult(time.Now())
	require.NoError(t, s.Save(ctx, result))

	require.NoError(t, s.Delete(ctx, result.RunID))

	_, err := s.Get(ctx, result.RunID)
	assert.True(t, errors.IsCode(err, errors.CodeRunNotFound))

	err = s.Delete(ctx, result.RunID)
	assert.True(t, errors.IsCode(err, errors.CodeRunNotFound))
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	result := newResult(time.Now())
	require.NoError(t, s.Save(ctx, result))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	run, err := reopened.Get(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, run.ID)
}

func TestOpenAddsStrategyColumn(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, "ALTER TABLE runs DROP COLUMN strategy")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	result := newResult(time.Now())
	require.NoError(t, reopened.Save(ctx, result))

	runs, err := reopened.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "record-first", runs[0].Strategy)
}
