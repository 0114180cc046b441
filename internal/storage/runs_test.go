package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-marczewski/skillforge/internal/skillforge"
	"github.com/a-marczewski/skillforge/internal/skillforge/evaluate"
	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "store", "runs.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReport(id string, started time.Time) *skillforge.ForgeReport {
	return &skillforge.ForgeReport{
		RunID:          id,
		StartedAt:      started,
		FinishedAt:     started.Add(1500 * time.Millisecond),
		Discovered:     2,
		Evaluated:      2,
		AutoIntegrated: 1,
		Skipped:        1,
		Integrated:     []string{"weather-skill"},
		Failures: []skillforge.Failure{
			{Stage: "scouting", Subject: "clawhub", Error: "down"},
		},
		Results: []evaluate.EvalResult{
			{
				Candidate: scout.Candidate{
					Name:      "weather-skill",
					SourceURL: "https://github.com/acme/weather-skill",
					Source:    "github",
					Metadata:  scout.Metadata{scout.MetaStars: 120, scout.MetaLicense: "MIT"},
				},
				Score:          0.91,
				Recommendation: evaluate.Auto,
				Reasons:        []string{"stars: 120", "decision: auto"},
			},
			{
				Candidate: scout.Candidate{
					Name:      "old",
					SourceURL: "https://github.com/acme/old",
					Source:    "github",
				},
				Recommendation: evaluate.Skip,
				Reasons:        []string{"disqualified: repository is archived", "decision: skip"},
			},
		},
	}
}

func TestOpenMigrates(t *testing.T) {
	db := openTestDB(t)

	var version int
	require.NoError(t, db.Conn().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	var journal string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)
	assert.NoError(t, db.Ping())
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.sqlite3")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveReport(context.Background(), sampleReport("run-1", time.Now())))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, path, db.Path())
}

func TestSaveAndGetReport(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 17, 8, 0, 0, 123000000, time.UTC)

	require.NoError(t, db.SaveReport(ctx, sampleReport("run-1", started)))

	got, err := db.GetReport(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	assert.Equal(t, 2, got.Discovered)
	assert.Equal(t, 1, got.AutoIntegrated)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, []string{"weather-skill"}, got.Integrated)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "clawhub", got.Failures[0].Subject)

	require.Len(t, got.Results, 2)
	first := got.Results[0]
	assert.Equal(t, "weather-skill", first.Candidate.Name)
	assert.Equal(t, evaluate.Auto, first.Recommendation)
	assert.Equal(t, 0.91, first.Score)
	assert.Equal(t, []string{"stars: 120", "decision: auto"}, first.Reasons)
	stars, ok := first.Candidate.Metadata.Number(scout.MetaStars)
	assert.True(t, ok)
	assert.Equal(t, 120.0, stars)
	assert.Equal(t, evaluate.Skip, got.Results[1].Recommendation)
}

func TestGetReportNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetReport(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSaveReportSkipsDisabledRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveReport(ctx, &skillforge.ForgeReport{}))
	require.NoError(t, db.SaveReport(ctx, nil))

	runs, err := db.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSaveReportRejectsDuplicateRunID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveReport(ctx, sampleReport("run-1", time.Now())))
	assert.Error(t, db.SaveReport(ctx, sampleReport("run-1", time.Now())))
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveReport(ctx, sampleReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := db.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-2", runs[2].RunID)
	assert.Equal(t, 1, runs[0].Failures)
}

func TestPruneRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, db.SaveReport(ctx, sampleReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	deleted, err := db.PruneRuns(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = db.GetReport(ctx, "run-0")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	var orphans int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM forge_results WHERE run_id = 'run-0'`).Scan(&orphans))
	assert.Zero(t, orphans)
}
