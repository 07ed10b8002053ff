package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters exposed on /metrics.
type Metrics struct {
	AnalysesTotal     *prometheus.CounterVec
	ProviderFallbacks prometheus.Counter
	AutofixFallbacks  prometheus.Counter
	PatchesTotal      *prometheus.CounterVec
}

// NewMetrics registers the service counters on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infrapilot_analyses_total",
			Help: "Completed analyses by file type and serving provider.",
		}, []string{"file_type", "provider"}),
		ProviderFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "infrapilot_provider_fallbacks_total",
			Help: "Analyses that degraded from an AI provider to the rule engine.",
		}),
		AutofixFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "infrapilot_autofix_fallbacks_total",
			Help: "Patch generations that fell back from the agent to the template.",
		}),
		PatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infrapilot_patches_total",
			Help: "Patch generation outcomes.",
		}, []string{"outcome"}),
	}
}
