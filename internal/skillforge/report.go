package skillforge

import (
	"time"

	"github.com/a-marczewski/skillforge/internal/skillforge/evaluate"
)

// Stage is a step of a forge run. Runs move through the stages in order and
// never go back.
type Stage int

const (
	StageIdle Stage = iota
	StageScouting
	StageDeduplicating
	StageEvaluating
	StageIntegrating
	StageReporting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageScouting:
		return "scouting"
	case StageDeduplicating:
		return "deduplicating"
	case StageEvaluating:
		return "evaluating"
	case StageIntegrating:
		return "integrating"
	case StageReporting:
		return "reporting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Failure is a recoverable error recorded during a run.
type Failure struct {
	Stage   string `json:"stage"`
	Subject string `json:"subject"`
	Error   string `json:"error"`
}

// ForgeReport summarizes one run.
//
// AutoIntegrated + ManualReview + Skipped equals Evaluated, minus the number
// of Auto candidates whose integration failed. Those are listed in Failures.
type ForgeReport struct {
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Discovered     int `json:"discovered"`
	Evaluated      int `json:"evaluated"`
	AutoIntegrated int `json:"auto_integrated"`
	ManualReview   int `json:"manual_review"`
	Skipped        int `json:"skipped"`

	Results    []evaluate.EvalResult `json:"results"`
	Integrated []string              `json:"integrated,omitempty"`
	Failures   []Failure             `json:"failures,omitempty"`
}

// emptyReport is returned for disabled runs.
func emptyReport() *ForgeReport {
	return &ForgeReport{Results: []evaluate.EvalResult{}}
}

// CountRecommendation returns how many results carry rec.
func (r *ForgeReport) CountRecommendation(rec evaluate.Recommendation) int {
	n := 0
	for _, res := range r.Results {
		if res.Recommendation == rec {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (r *ForgeReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
