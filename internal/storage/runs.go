package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a-marczewski/skillforge/internal/skillforge"
	"github.com/a-marczewski/skillforge/internal/skillforge/evaluate"
	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Discovered     int       `json:"discovered"`
	Evaluated      int       `json:"evaluated"`
	AutoIntegrated int       `json:"auto_integrated"`
	ManualReview   int       `json:"manual_review"`
	Skipped        int       `json:"skipped"`
	Failures       int       `json:"failures"`
}

// SaveReport stores a completed run and its results in one transaction.
// Reports without a run id (disabled runs) are not stored.
func (db *DB) SaveReport(ctx context.Context, r *skillforge.ForgeReport) error {
	if r == nil || r.RunID == "" {
		return nil
	}

	integrated, err := json.Marshal(nonNil(r.Integrated))
	if err != nil {
		return fmt.Errorf("failed to encode integrated names: %w", err)
	}
	failures := r.Failures
	if failures == nil {
		failures = []skillforge.Failure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO forge_runs (
			run_id, started_at, finished_at, discovered, evaluated,
			auto_integrated, manual_review, skipped, integrated, failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
		r.Discovered,
		r.Evaluated,
		r.AutoIntegrated,
		r.ManualReview,
		r.Skipped,
		string(integrated),
		string(failuresJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forge_results (
			run_id, position, name, source, source_url, score, recommendation, reasons, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, res := range r.Results {
		reasons, err := json.Marshal(nonNil(res.Reasons))
		if err != nil {
			return fmt.Errorf("failed to encode reasons: %w", err)
		}
		meta := res.Candidate.Metadata
		if meta == nil {
			meta = scout.Metadata{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			r.RunID,
			i,
			res.Candidate.Name,
			res.Candidate.Source,
			res.Candidate.SourceURL,
			res.Score,
			res.Recommendation.String(),
			string(reasons),
			string(metaJSON),
		); err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, discovered, evaluated,
		       auto_integrated, manual_review, skipped, failures
		FROM forge_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished, failures string
		if err := rows.Scan(&s.RunID, &started, &finished, &s.Discovered, &s.Evaluated,
			&s.AutoIntegrated, &s.ManualReview, &s.Skipped, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTime(started)
		s.FinishedAt = parseTime(finished)

		var fs []skillforge.Failure
		if err := json.Unmarshal([]byte(failures), &fs); err == nil {
			s.Failures = len(fs)
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// GetReport loads a stored run with its results in evaluation order.
func (db *DB) GetReport(ctx context.Context, runID string) (*skillforge.ForgeReport, error) {
	r := &skillforge.ForgeReport{RunID: runID, Results: []evaluate.EvalResult{}}
	var started, finished, integrated, failures string

	err := db.conn.QueryRowContext(ctx, `
		SELECT started_at, finished_at, discovered, evaluated,
		       auto_integrated, manual_review, skipped, integrated, failures
		FROM forge_runs
		WHERE run_id = ?
	`, runID).Scan(&started, &finished, &r.Discovered, &r.Evaluated,
		&r.AutoIntegrated, &r.ManualReview, &r.Skipped, &integrated, &failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	if err := json.Unmarshal([]byte(integrated), &r.Integrated); err != nil {
		return nil, fmt.Errorf("failed to decode integrated names: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &r.Failures); err != nil {
		return nil, fmt.Errorf("failed to decode failures: %w", err)
	}
	if len(r.Integrated) == 0 {
		r.Integrated = nil
	}
	if len(r.Failures) == 0 {
		r.Failures = nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT name, source, source_url, score, recommendation, reasons, metadata
		FROM forge_results
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res evaluate.EvalResult
		var rec, reasons, meta string
		if err := rows.Scan(&res.Candidate.Name, &res.Candidate.Source, &res.Candidate.SourceURL,
			&res.Score, &rec, &reasons, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if res.Recommendation, err = evaluate.ParseRecommendation(rec); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reasons), &res.Reasons); err != nil {
			return nil, fmt.Errorf("failed to decode reasons: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &res.Candidate.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		r.Results = append(r.Results, res)
	}
	return r, rows.Err()
}

// PruneRuns deletes all but the newest keep runs. Results go with them.
func (db *DB) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM forge_runs
		WHERE run_id NOT IN (
			SELECT run_id FROM forge_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
