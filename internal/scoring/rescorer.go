// Package scoring adjusts issue severities with a secondary scoring signal
// and reduces an issue set to the aggregate drift score. Both halves share
// the severity weight table in pkg/models so the escalation and monotonicity
// rules hold structurally.
package scoring

import (
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// Scorer produces a 0-1 drift-risk score for one issue. Implementations may
// call out to a learned model; failures make the rescorer skip that issue.
type Scorer interface {
	Score(issue models.Issue) (float64, error)
}

// LookupScorer is the deterministic scoring table used when no learned
// backend is wired in. Scores sit slightly above the severity weights so the
// escalation thresholds keep them in band.
type LookupScorer struct{}

var lookupScores = map[models.Severity]float64{
	models.SeverityLow:      0.25,
	models.SeverityMedium:   0.50,
	models.SeverityHigh:     0.75,
	models.SeverityCritical: 0.95,
}

// Score returns the table score for the issue's severity.
func (LookupScorer) Score(issue models.Issue) (float64, error) {
	if s, ok := lookupScores[issue.Severity]; ok {
		return s, nil
	}
	return lookupScores[models.SeverityMedium], nil
}

// Rescorer annotates issues with secondary scores and escalates severities
// the score justifies. It preserves identity and ordering of the input and
// never fails the pipeline: a scoring error leaves that issue untouched.
type Rescorer struct {
	scorer Scorer
	log    logger.Logger
}

// NewRescorer creates a rescorer around the given scorer. A nil scorer makes
// Rescore the identity function.
func NewRescorer(scorer Scorer) *Rescorer {
	return &Rescorer{
		scorer: scorer,
		log:    logger.New("rescorer"),
	}
}

// severityFromScore maps a confident score onto the severity it implies.
// The thresholds sit above the corresponding weights so a borderline score
// never escalates.
func severityFromScore(score float64) models.Severity {
	switch {
	case score >= 0.90:
		return models.SeverityCritical
	case score >= 0.70:
		return models.SeverityHigh
	case score >= 0.45:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Rescore returns the issues with RLScore filled in and severities raised
// where the score demands it. Severities are never lowered: a low-confidence
// rescore must not silently downgrade a confident original detection.
func (r *Rescorer) Rescore(issues []models.Issue) []models.Issue {
	if r.scorer == nil || len(issues) == 0 {
		return issues
	}

	out := make([]models.Issue, len(issues))
	copy(out, issues)

	for i := range out {
		score, err := r.scorer.Score(out[i])
		if err != nil {
			r.log.Warn("scoring failed, keeping original severity",
				logger.String("issue", out[i].ID),
				logger.Error(err))
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		s := score
		out[i].RLScore = &s

		if implied := severityFromScore(score); implied.Rank() > out[i].Severity.Rank() {
			r.log.Debug("escalating issue severity",
				logger.String("issue", out[i].ID),
				logger.String("from", string(out[i].Severity)),
				logger.String("to", string(implied)),
				logger.Float64("score", score))
			out[i].Severity = implied
		}
	}
	return out
}
