package providers

import (
	"context"
	"time"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/internal/rules"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// RulesProviderName is reported when the rule engine produced the issue list.
const RulesProviderName = "rules"

// RouteResult is the outcome of one routed analysis: the issues, the
// provider timeline when one was predicted, and the backend that actually
// answered.
type RouteResult struct {
	Issues   []models.Issue
	Timeline []models.TimelineEvent
	Provider string
	Model    string
	// FellBack is true when the AI attempt failed and the rule engine
	// answered instead.
	FellBack bool
}

// Router resolves a model selector to a provider and runs exactly one AI
// attempt before falling back to the rule engine. The fallback is single
// level and unconditional: no retries, no cascading across AI backends, so
// the worst-case latency of a request stays bounded by one provider budget.
type Router struct {
	cfg        *config.Config
	backends   map[config.ProviderKind]Provider
	engine     *rules.Engine
	log        logger.Logger
	onFallback func(reason string)
}

// NewRouter wires the configured backends. The rule engine is mandatory; it
// is the guaranteed terminal case.
func NewRouter(cfg *config.Config, engine *rules.Engine) *Router {
	return &Router{
		cfg: cfg,
		backends: map[config.ProviderKind]Provider{
			config.ProviderGemini: NewGeminiProvider(cfg.Providers.Gemini),
			config.ProviderOllama: NewOllamaProvider(cfg.Providers.Ollama),
		},
		engine: engine,
		log:    logger.New("router"),
	}
}

// WithBackend replaces a backend, used by tests to inject stubs.
func (r *Router) WithBackend(kind config.ProviderKind, p Provider) *Router {
	r.backends[kind] = p
	return r
}

// OnFallback registers an observer called whenever the router degrades to
// the rule engine.
func (r *Router) OnFallback(fn func(reason string)) {
	r.onFallback = fn
}

// Route analyzes the content with the resolved provider, degrading to the
// rule engine on any provider failure. It never returns an error: the rule
// engine always answers, even if with an empty issue list.
func (r *Router) Route(ctx context.Context, content string, fileType models.FileType, selector string) *RouteResult {
	resolution := r.cfg.Resolve(selector)

	if resolution.Kind == config.ProviderRules {
		r.log.Info("no AI backend for selector, using rule engine",
			logger.String("selector", selector))
		return r.rulesResult(content, fileType, false)
	}

	backend, ok := r.backends[resolution.Kind]
	if !ok {
		return r.rulesResult(content, fileType, true)
	}

	budget := r.budgetFor(resolution.Kind)
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	result, err := backend.Analyze(callCtx, content, fileType, resolution.Model)
	if err != nil {
		fields := []logger.Field{
			logger.String("provider", backend.Name()),
			logger.String("model", resolution.Model),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		}
		if apperrors.IsProviderFailure(err) {
			r.log.Warn("provider failed, falling back to rule engine", fields...)
		} else {
			// Anything outside the provider failure taxonomy is a bug in
			// the backend, not an expected degradation.
			r.log.Error("provider returned an unclassified error, falling back to rule engine", fields...)
		}
		if r.onFallback != nil {
			r.onFallback(backend.Name())
		}
		return r.rulesResult(content, fileType, true)
	}

	r.log.Info("provider analysis complete",
		logger.String("provider", backend.Name()),
		logger.String("model", resolution.Model),
		logger.Int("issues", len(result.Issues)),
		logger.Duration("elapsed", time.Since(start)))

	return &RouteResult{
		Issues:   result.Issues,
		Timeline: result.Timeline,
		Provider: backend.Name(),
		Model:    resolution.Model,
	}
}

func (r *Router) budgetFor(kind config.ProviderKind) time.Duration {
	switch kind {
	case config.ProviderGemini:
		return r.cfg.Providers.Gemini.Timeout
	case config.ProviderOllama:
		return r.cfg.Providers.Ollama.Timeout
	}
	return 30 * time.Second
}

func (r *Router) rulesResult(content string, fileType models.FileType, fellBack bool) *RouteResult {
	return &RouteResult{
		Issues:   r.engine.Detect(content, fileType),
		Provider: RulesProviderName,
		FellBack: fellBack,
	}
}
