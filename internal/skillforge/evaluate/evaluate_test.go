package evaluate

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

var refTime = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func goodCandidate() scout.Candidate {
	return scout.Candidate{
		Name:      "weather-skill",
		SourceURL: "https://github.com/acme/weather-skill",
		Source:    "github",
		Metadata: scout.Metadata{
			scout.MetaDescription: "A zeroclaw skill that answers weather questions for agents",
			scout.MetaStars:       500,
			scout.MetaForks:       40,
			scout.MetaUpdatedAt:   refTime.Add(-10 * 24 * time.Hour).Format(time.RFC3339),
			scout.MetaLicense:     "MIT",
			scout.MetaArchived:    "false",
		},
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := New(0.7, WithNow(refTime))
	c := goodCandidate()

	first := e.Evaluate(c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(c))
	}
}

func TestEvaluateScoreInRange(t *testing.T) {
	e := New(0.5, WithNow(refTime))

	perfect := goodCandidate()
	perfect.Metadata[scout.MetaStars] = 1_000_000
	perfect.Metadata[scout.MetaForks] = 100_000
	perfect.Metadata[scout.MetaDescription] = "An agent skill and tool for zeroclaw with thorough documentation, examples, tests and a long description that keeps going well past the documentation saturation point"
	res := e.Evaluate(perfect)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.InDelta(t, 1.0, res.Score, 0.0001)

	bare := scout.Candidate{
		Name:      "x",
		SourceURL: "https://example.com/x",
		Metadata:  scout.Metadata{scout.MetaDescription: "x"},
	}
	res = e.Evaluate(bare)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.Equal(t, Manual, res.Recommendation)
}

func TestEvaluateIgnoresNonFiniteNumbers(t *testing.T) {
	e := New(0.7, WithNow(refTime))

	base := goodCandidate()
	delete(base.Metadata, scout.MetaStars)
	delete(base.Metadata, scout.MetaForks)
	want := e.Evaluate(base).Score

	for _, stars := range []any{"NaN", "Inf", math.NaN(), math.Inf(1)} {
		c := goodCandidate()
		c.Metadata[scout.MetaStars] = stars
		c.Metadata[scout.MetaForks] = math.NaN()

		res := e.Evaluate(c)
		assert.False(t, math.IsNaN(res.Score), "stars=%v", stars)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
		assert.Equal(t, want, res.Score, "non-finite counts score like absent ones")
		assert.Contains(t, res.Reasons, "stars: 0 (0.00 x 0.35)")

		_, err := json.Marshal(res)
		require.NoError(t, err, "stars=%v", stars)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(math.NaN()))
	assert.Equal(t, 0.0, clamp01(-2))
	assert.Equal(t, 1.0, clamp01(math.Inf(1)))
	assert.Equal(t, 0.25, clamp01(0.25))
}

func TestEvaluateMonotonicity(t *testing.T) {
	e := New(0.7, WithNow(refTime))

	signals := []struct {
		name  string
		apply func(c scout.Candidate, step int) scout.Candidate
	}{
		{"stars", func(c scout.Candidate, step int) scout.Candidate {
			c.Metadata[scout.MetaStars] = step * 37
			return c
		}},
		{"forks", func(c scout.Candidate, step int) scout.Candidate {
			c.Metadata[scout.MetaForks] = step * 9
			return c
		}},
		{"freshness", func(c scout.Candidate, step int) scout.Candidate {
			age := time.Duration(400-step*15) * 24 * time.Hour
			c.Metadata[scout.MetaUpdatedAt] = refTime.Add(-age).Format(time.RFC3339)
			return c
		}},
		{"documentation", func(c scout.Candidate, step int) scout.Candidate {
			desc := "d"
			for i := 0; i < step*6; i++ {
				desc += "o"
			}
			c.Metadata[scout.MetaDescription] = desc
			return c
		}},
	}

	for _, sig := range signals {
		t.Run(sig.name, func(t *testing.T) {
			prev := -1.0
			for step := 0; step < 30; step++ {
				c := goodCandidate().Clone()
				c.Metadata[scout.MetaDescription] = "d"
				c = sig.apply(c, step)
				score := e.Evaluate(c).Score
				assert.GreaterOrEqual(t, score, prev, "step %d", step)
				prev = score
			}
		})
	}
}

func TestEvaluateThresholdIsInclusive(t *testing.T) {
	c := goodCandidate()
	score := New(0, WithNow(refTime)).Evaluate(c).Score

	assert.Equal(t, Auto, New(score, WithNow(refTime)).Evaluate(c).Recommendation)
	assert.Equal(t, Manual, New(score+0.0001, WithNow(refTime)).Evaluate(c).Recommendation)
}

func TestEvaluateMinScoreBoundaries(t *testing.T) {
	c := goodCandidate()
	assert.Equal(t, Auto, New(0, WithNow(refTime)).Evaluate(c).Recommendation)
	assert.Equal(t, Manual, New(1, WithNow(refTime)).Evaluate(c).Recommendation)
}

func TestEvaluateDisqualifiers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*scout.Candidate)
		reason string
	}{
		{"empty name", func(c *scout.Candidate) { c.Name = "  " }, "missing name"},
		{"empty url", func(c *scout.Candidate) { c.SourceURL = "" }, "missing source url"},
		{"no description", func(c *scout.Candidate) { delete(c.Metadata, scout.MetaDescription) }, "missing description"},
		{"archived", func(c *scout.Candidate) { c.Metadata[scout.MetaArchived] = "true" }, "archived"},
		{"denied license", func(c *scout.Candidate) { c.Metadata[scout.MetaLicense] = "AGPL-3.0" }, "not allowed"},
		{"suspicious", func(c *scout.Candidate) {
			c.Metadata[scout.MetaDescription] = "Totally legit keylogger for agents"
		}, "keylogger"},
	}

	e := New(0, WithNow(refTime), WithDeniedLicenses("agpl-3.0"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := goodCandidate().Clone()
			tt.mutate(&c)

			res := e.Evaluate(c)
			assert.Equal(t, Skip, res.Recommendation)
			assert.Zero(t, res.Score)
			require.NotEmpty(t, res.Reasons)
			assert.Contains(t, res.Reasons[0], tt.reason)
		})
	}
}

func TestEvaluateCopiesCandidate(t *testing.T) {
	c := goodCandidate()
	res := New(0.7, WithNow(refTime)).Evaluate(c)

	c.Metadata[scout.MetaStars] = 0
	stars, _ := res.Candidate.Metadata.Number(scout.MetaStars)
	assert.Equal(t, 500.0, stars)
}

func TestEvaluateReasons(t *testing.T) {
	res := New(0.7, WithNow(refTime)).Evaluate(goodCandidate())

	require.Len(t, res.Reasons, 7)
	assert.Contains(t, res.Reasons[0], "stars: 500")
	assert.Contains(t, res.Reasons[2], "updated 10 days ago")
	assert.Contains(t, res.Reasons[4], "license: MIT")
	assert.Contains(t, res.Reasons[6], "decision:")
}

func TestLicenseScore(t *testing.T) {
	assert.Equal(t, 1.0, licenseScore("Apache-2.0"))
	assert.Equal(t, 0.5, licenseScore("GPL-3.0"))
	assert.Equal(t, 0.0, licenseScore(""))
}

func TestRecommendationJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		R Recommendation `json:"r"`
	}{Manual})
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":"manual"}`, string(data))

	var out struct {
		R Recommendation `json:"r"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"r":"skip"}`), &out))
	assert.Equal(t, Skip, out.R)

	_, err = ParseRecommendation("maybe")
	assert.Error(t, err)
}
