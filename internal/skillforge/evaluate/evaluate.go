// Package evaluate scores skill candidates and decides what to do with them.
//
// Evaluation is pure: it reads only the candidate, the configured threshold
// and a reference time fixed when the Evaluator is built. The same inputs
// always produce the same EvalResult.
package evaluate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

// Recommendation is the outcome of evaluating a candidate.
type Recommendation int

const (
	Auto Recommendation = iota
	Manual
	Skip
)

func (r Recommendation) String() string {
	switch r {
	case Auto:
		return "auto"
	case Manual:
		return "manual"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("recommendation(%d)", int(r))
	}
}

// MarshalText encodes the recommendation as its lower-case name.
func (r Recommendation) MarshalText() ([]byte, error) {
	switch r {
	case Auto, Manual, Skip:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("invalid recommendation %d", int(r))
	}
}

// UnmarshalText parses a recommendation name.
func (r *Recommendation) UnmarshalText(text []byte) error {
	rec, err := ParseRecommendation(string(text))
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// ParseRecommendation is the inverse of Recommendation.String.
func ParseRecommendation(s string) (Recommendation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return Auto, nil
	case "manual":
		return Manual, nil
	case "skip":
		return Skip, nil
	default:
		return 0, fmt.Errorf("unknown recommendation %q", s)
	}
}

// EvalResult is one candidate plus its judgment.
type EvalResult struct {
	Candidate      scout.Candidate `json:"candidate"`
	Score          float64         `json:"score"`
	Recommendation Recommendation  `json:"recommendation"`
	Reasons        []string        `json:"reasons"`
}

// Signal weights. They sum to 1 so a perfect candidate scores 1.0.
const (
	weightStars     = 0.35
	weightForks     = 0.10
	weightFreshness = 0.20
	weightDocs      = 0.15
	weightLicense   = 0.10
	weightRelevance = 0.10
)

const (
	starsSaturation = 1000
	forksSaturation = 200
	freshDays       = 30
	staleDays       = 365
	docsSaturation  = 120
	relevanceHits   = 2
)

var permissiveLicenses = map[string]struct{}{
	"mit":          {},
	"apache-2.0":   {},
	"bsd-2-clause": {},
	"bsd-3-clause": {},
	"isc":          {},
	"mpl-2.0":      {},
	"unlicense":    {},
	"0bsd":         {},
	"cc0-1.0":      {},
	"zlib":         {},
}

var relevanceKeywords = []string{"skill", "agent", "zeroclaw", "tool", "mcp", "plugin"}

var suspiciousKeywords = []string{
	"malware",
	"keylogger",
	"exploit kit",
	"credential stealer",
	"botnet",
	"ransomware",
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithNow fixes the reference time used for freshness.
func WithNow(now time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithDeniedLicenses marks SPDX ids that disqualify a candidate outright.
func WithDeniedLicenses(ids ...string) Option {
	return func(e *Evaluator) {
		for _, id := range ids {
			id = strings.ToLower(strings.TrimSpace(id))
			if id != "" {
				e.denied[id] = struct{}{}
			}
		}
	}
}

// Evaluator scores candidates against a minimum score.
type Evaluator struct {
	minScore float64
	now      time.Time
	denied   map[string]struct{}
}

// New creates an Evaluator. minScore is expected in [0,1]; the configuration
// layer rejects anything else before an Evaluator is built.
func New(minScore float64, opts ...Option) *Evaluator {
	e := &Evaluator{
		minScore: minScore,
		now:      time.Now().UTC(),
		denied:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinScore returns the configured threshold.
func (e *Evaluator) MinScore() float64 {
	return e.minScore
}

// Evaluate scores c. The candidate is copied into the result.
func (e *Evaluator) Evaluate(c scout.Candidate) EvalResult {
	res := EvalResult{Candidate: c.Clone()}

	if reason, bad := e.disqualify(c); bad {
		res.Score = 0
		res.Recommendation = Skip
		res.Reasons = []string{"disqualified: " + reason, "decision: skip"}
		return res
	}

	var score float64
	var reasons []string
	add := func(weight, value float64, format string, args ...any) {
		score += weight * value
		reasons = append(reasons, fmt.Sprintf(format, args...)+fmt.Sprintf(" (%.2f x %.2f)", value, weight))
	}

	stars, _ := c.Metadata.Number(scout.MetaStars)
	add(weightStars, logScale(stars, starsSaturation), "stars: %d", int64(math.Max(stars, 0)))

	forks, _ := c.Metadata.Number(scout.MetaForks)
	add(weightForks, logScale(forks, forksSaturation), "forks: %d", int64(math.Max(forks, 0)))

	freshness, age := e.freshness(c.Metadata.String(scout.MetaUpdatedAt))
	if age < 0 {
		add(weightFreshness, freshness, "freshness: no update timestamp")
	} else {
		add(weightFreshness, freshness, "freshness: updated %d days ago", age)
	}

	desc := strings.TrimSpace(c.Metadata.String(scout.MetaDescription))
	add(weightDocs, math.Min(float64(len(desc))/docsSaturation, 1), "documentation: %d character description", len(desc))

	license := strings.TrimSpace(c.Metadata.String(scout.MetaLicense))
	add(weightLicense, licenseScore(license), "license: %s", orNone(license))

	hits := relevance(c)
	add(weightRelevance, math.Min(float64(hits)/relevanceHits, 1), "relevance: %d keyword matches", hits)

	res.Score = round4(clamp01(score))
	if res.Score >= e.minScore {
		res.Recommendation = Auto
	} else {
		res.Recommendation = Manual
	}
	res.Reasons = append(reasons, fmt.Sprintf("decision: %s (score %.4f, threshold %.4f)", res.Recommendation, res.Score, e.minScore))
	return res
}

// disqualify reports the first hard eligibility failure, if any.
func (e *Evaluator) disqualify(c scout.Candidate) (string, bool) {
	if strings.TrimSpace(c.Name) == "" {
		return "missing name", true
	}
	if c.Key() == "" {
		return "missing source url", true
	}
	desc := strings.TrimSpace(c.Metadata.String(scout.MetaDescription))
	if desc == "" {
		return "missing description", true
	}
	if c.Metadata.Bool(scout.MetaArchived) {
		return "repository is archived", true
	}
	license := strings.ToLower(strings.TrimSpace(c.Metadata.String(scout.MetaLicense)))
	if _, denied := e.denied[license]; denied && license != "" {
		return fmt.Sprintf("license %s is not allowed", c.Metadata.String(scout.MetaLicense)), true
	}
	text := strings.ToLower(c.Name + " " + desc + " " + c.Metadata.String(scout.MetaTopics))
	for _, kw := range suspiciousKeywords {
		if strings.Contains(text, kw) {
			return fmt.Sprintf("suspicious keyword %q", kw), true
		}
	}
	return "", false
}

// freshness returns the freshness value and the age in whole days, or -1
// when the timestamp is missing or malformed.
func (e *Evaluator) freshness(updatedAt string) (float64, int) {
	if updatedAt == "" {
		return 0, -1
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return 0, -1
	}
	days := e.now.Sub(t).Hours() / 24
	if days < 0 {
		days = 0
	}
	switch {
	case days <= freshDays:
		return 1, int(days)
	case days >= staleDays:
		return 0, int(days)
	default:
		return (staleDays - days) / (staleDays - freshDays), int(days)
	}
}

func logScale(v, saturation float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Min(math.Log10(1+v)/math.Log10(1+saturation), 1)
}

func licenseScore(spdx string) float64 {
	if spdx == "" {
		return 0
	}
	if _, ok := permissiveLicenses[strings.ToLower(spdx)]; ok {
		return 1
	}
	return 0.5
}

func relevance(c scout.Candidate) int {
	text := strings.ToLower(strings.Join([]string{
		c.Name,
		c.Metadata.String(scout.MetaDescription),
		c.Metadata.String(scout.MetaTopics),
	}, " "))
	hits := 0
	for _, kw := range relevanceKeywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
