package autofix

import (
	"context"
	"fmt"
	"strings"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// Orchestrator runs the two-stage patch pipeline: the external agent first,
// the template generator when the agent fails. Validation errors are the
// caller's fault and surface as KindInvalidInput; an agent failure is not an
// error, only a fallback generation failure is.
type Orchestrator struct {
	agent      Generator
	fallback   Generator
	log        logger.Logger
	onFallback func()
}

// NewOrchestrator wires the default agent and template generators.
func NewOrchestrator(cfg config.AutofixConfig) *Orchestrator {
	return &Orchestrator{
		agent:    NewAgentGenerator(cfg),
		fallback: NewTemplateGenerator(),
		log:      logger.New("autofix"),
	}
}

// WithGenerators overrides both stages. Used by tests.
func (o *Orchestrator) WithGenerators(agent, fallback Generator) *Orchestrator {
	o.agent = agent
	o.fallback = fallback
	return o
}

// OnFallback registers an observer invoked whenever the template path runs.
func (o *Orchestrator) OnFallback(fn func()) {
	o.onFallback = fn
}

// GeneratePatch produces a unified diff for the issue. The result reports
// success on both the agent and the template path; Message records which one
// ran. Success is false only when the template generator itself fails.
func (o *Orchestrator) GeneratePatch(ctx context.Context, req models.PatchRequest) (*models.PatchResult, error) {
	if strings.TrimSpace(req.FileContent) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "file_content must not be empty")
	}
	if strings.TrimSpace(req.Issue.Title) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "issue.title must not be empty")
	}

	log := o.log.WithContext(ctx).WithFields(logger.String("issue", req.Issue.Title))

	diff, err := o.agent.Generate(ctx, req)
	if err == nil {
		log.Info("patch generated", logger.String("generator", o.agent.Name()))
		return &models.PatchResult{
			Success: true,
			Diff:    diff,
			Message: fmt.Sprintf("patch generated by %s", o.agent.Name()),
		}, nil
	}

	log.Warn("patch agent failed, falling back to template",
		logger.Error(err))
	if o.onFallback != nil {
		o.onFallback()
	}

	diff, err = o.fallback.Generate(ctx, req)
	if err != nil {
		log.Error("template fallback failed", logger.Error(err))
		return &models.PatchResult{
			Success: false,
			Message: fmt.Sprintf("patch generation failed: %v", err),
		}, err
	}

	log.Info("patch generated", logger.String("generator", o.fallback.Name()))
	return &models.PatchResult{
		Success: true,
		Diff:    diff,
		Message: fmt.Sprintf("patch generated by %s after agent failure", o.fallback.Name()),
	}, nil
}
