package scoring

import (
	"math"

	"github.com/infrapilot/infrapilot/pkg/models"
)

// Aggregate reduces an issue set to the single drift score in [0,1]. The
// score is a pure function of the multiset of severities: it ignores issue
// order, IDs and secondary scores, so the same issue list always reproduces
// the same score.
//
// Each severity contributes its weight as an independent risk factor and the
// contributions combine as complements:
//
//	score = 1 - Π (1 - weight(severity))
//
// which gives the required shape: an empty list scores 0, one high-severity
// issue already clears 0.5, any critical pushes the score to the top of the
// range, and adding an issue can never lower the score.
func Aggregate(issues []models.Issue) float64 {
	if len(issues) == 0 {
		return 0.0
	}

	remaining := 1.0
	for _, issue := range issues {
		remaining *= 1.0 - issue.Severity.Weight()
	}

	score := 1.0 - remaining
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return round2(score)
}

// round2 rounds to two decimals for stable presentation.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
