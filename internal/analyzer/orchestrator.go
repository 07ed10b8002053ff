// Package analyzer composes the analysis pipeline: provider routing, severity
// rescoring, timeline projection and drift aggregation. One call in, one
// complete result out; past input validation the pipeline never fails.
package analyzer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/internal/providers"
	"github.com/infrapilot/infrapilot/internal/scoring"
	"github.com/infrapilot/infrapilot/internal/timeline"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// Recorder persists completed analysis runs. The pipeline treats recording
// as best effort; a failing recorder never fails an analysis.
type Recorder interface {
	RecordAnalysis(ctx context.Context, result *models.AnalyzeResult, fileType models.FileType) error
}

// Orchestrator is the top-level analysis component.
type Orchestrator struct {
	router   *providers.Router
	rescorer *scoring.Rescorer
	recorder Recorder
	log      logger.Logger
}

// New creates the orchestrator. The recorder may be nil.
func New(router *providers.Router, rescorer *scoring.Rescorer, recorder Recorder) *Orchestrator {
	return &Orchestrator{
		router:   router,
		rescorer: rescorer,
		recorder: recorder,
		log:      logger.New("analyzer"),
	}
}

// Analyze runs the full pipeline for one request. The only error it returns
// is KindInvalidInput; every backend failure downstream degrades to the rule
// engine instead of surfacing.
func (o *Orchestrator) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "content must not be empty")
	}
	if !req.FileType.Valid() {
		return nil, apperrors.Newf(apperrors.KindInvalidInput, "unknown file_type %q", req.FileType)
	}

	start := time.Now()
	log := o.log.WithContext(ctx).WithFields(
		logger.String("file_type", string(req.FileType)),
		logger.Int("content_bytes", len(req.Content)))
	log.Info("starting analysis", logger.String("model", req.Model))

	routed := o.router.Route(ctx, req.Content, req.FileType, req.Model)

	// The rescorer may escalate severities, so it runs before anything
	// that depends on them.
	issues := o.rescorer.Rescore(routed.Issues)

	events := routed.Timeline
	if len(events) == 0 {
		events = timeline.Synthesize(issues)
	} else {
		events = sortedByDay(events)
	}

	result := &models.AnalyzeResult{
		DriftScore: scoring.Aggregate(issues),
		Timeline:   events,
		Issues:     issues,
		Provider:   routed.Provider,
		Model:      routed.Model,
	}

	if o.recorder != nil {
		if err := o.recorder.RecordAnalysis(ctx, result, req.FileType); err != nil {
			log.Warn("failed to record analysis", logger.Error(err))
		}
	}

	log.Info("analysis complete",
		logger.String("provider", result.Provider),
		logger.Int("issues", len(result.Issues)),
		logger.Float64("drift_score", result.DriftScore),
		logger.Duration("elapsed", time.Since(start)))

	return result, nil
}

// sortedByDay normalizes a provider-predicted timeline to the non-decreasing
// day ordering the result contract requires.
func sortedByDay(events []models.TimelineEvent) []models.TimelineEvent {
	out := make([]models.TimelineEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
