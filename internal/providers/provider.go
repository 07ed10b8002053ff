// Package providers wraps the AI analysis backends behind one contract and
// routes requests to them. Every variant differs only in transport and auth;
// the analyze contract and its failure taxonomy are identical.
package providers

import (
	"context"

	"github.com/infrapilot/infrapilot/pkg/models"
)

// Result is a provider's view of one analysis: the issues it found, the
// escalation timeline it predicted, and its own drift estimate. The drift
// estimate is informational only; the aggregate score is always recomputed
// from the final issue list.
type Result struct {
	Issues     []models.Issue
	Timeline   []models.TimelineEvent
	DriftScore float64
}

// Provider is one AI backend capable of producing issues from raw
// infrastructure text. Analyze must respect ctx cancellation and must not
// leak in-flight request state between calls beyond connection reuse.
//
// Failures are reported through the apperrors kinds ProviderUnavailable,
// ProviderTimeout and ProviderMalformed so the router can fall back.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, content string, fileType models.FileType, model string) (*Result, error)
}
