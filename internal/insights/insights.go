// Package insights turns NDVI summaries into agronomic recommendations.
package insights

import (
	"math"

	"github.com/jwillz7667/CropLens/internal/ndvi"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Insight struct {
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

const (
	lowAreaThreshold   = 0.20
	sharpDropThreshold = -0.08
	improvingThreshold = 0.05
	lowMeanThreshold   = 0.40
)

type rule struct {
	applies func(current ndvi.Summary, previous *ndvi.Summary) bool
	insight Insight
}

// rules fire in order; every rule whose guard holds contributes one insight.
var rules = []rule{
	{
		applies: func(c ndvi.Summary, _ *ndvi.Summary) bool {
			return c.LowNDVIAreaPct > lowAreaThreshold
		},
		insight: Insight{
			Severity:       SeverityMedium,
			Message:        "Significant low NDVI area detected",
			Recommendation: "Inspect irrigation equipment and scout the highlighted block this week.",
		},
	},
	{
		applies: func(c ndvi.Summary, p *ndvi.Summary) bool {
			return p != nil && c.Mean-p.Mean <= sharpDropThreshold
		},
		insight: Insight{
			Severity:       SeverityHigh,
			Message:        "NDVI dropped sharply vs last run",
			Recommendation: "Prioritize this field for scouting and consider feeding/irrigation adjustments immediately.",
		},
	},
	{
		applies: func(c ndvi.Summary, p *ndvi.Summary) bool {
			return p != nil && c.Mean-p.Mean >= improvingThreshold
		},
		insight: Insight{
			Severity:       SeverityLow,
			Message:        "Canopy vigor improving",
			Recommendation: "Maintain irrigation cadence; no action required.",
		},
	},
	{
		applies: func(c ndvi.Summary, _ *ndvi.Summary) bool {
			return c.Mean < lowMeanThreshold
		},
		insight: Insight{
			Severity:       SeverityMedium,
			Message:        "Overall vigor is trending low",
			Recommendation: "Review fertilizer plan and soil moisture sensors before stress spreads.",
		},
	},
}

// Derive evaluates every rule against the current summary and the optional
// previous one. An empty result is valid.
func Derive(current ndvi.Summary, previous *ndvi.Summary) ([]Insight, error) {
	if math.IsNaN(current.Mean) || math.IsNaN(current.LowNDVIAreaPct) {
		return nil, &ndvi.InvalidInputError{Reason: "current NDVI summary contains NaN"}
	}
	if previous != nil && math.IsNaN(previous.Mean) {
		return nil, &ndvi.InvalidInputError{Reason: "previous NDVI summary contains NaN"}
	}

	out := []Insight{}
	for _, r := range rules {
		if r.applies(current, previous) {
			out = append(out, r.insight)
		}
	}
	return out, nil
}
