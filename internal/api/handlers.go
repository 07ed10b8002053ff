// Package api exposes the analysis and autofix pipelines over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/infrapilot/infrapilot/internal/analyzer"
	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/autofix"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// History lists persisted analysis runs. Satisfied by *storage.Store; nil
// disables the history endpoint.
type History interface {
	ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisRecord, error)
}

// Handlers binds the pipeline components to routes.
type Handlers struct {
	analyzer *analyzer.Orchestrator
	autofix  *autofix.Orchestrator
	applier  *autofix.Applier
	history  History
	metrics  *Metrics
	log      logger.Logger
}

// NewHandlers creates the route handlers.
func NewHandlers(an *analyzer.Orchestrator, fix *autofix.Orchestrator, applier *autofix.Applier, history History, metrics *Metrics) *Handlers {
	return &Handlers{
		analyzer: an,
		autofix:  fix,
		applier:  applier,
		history:  history,
		metrics:  metrics,
		log:      logger.New("api"),
	}
}

// Health reports service liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "infrapilot",
	})
}

// Models returns the model catalog the router understands.
func (h *Handlers) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"local": []string{"llama3", "wizardlm2", "qwen2.5", "deepseek-r1"},
		"cloud": []string{"gemini-2.0-flash", "gemini-1.5-pro"},
	})
}

// Analyze runs the full analysis pipeline on one configuration file.
func (h *Handlers) Analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AnalysesTotal.WithLabelValues(string(req.FileType), result.Provider).Inc()
	}
	c.JSON(http.StatusOK, result)
}

// GeneratePatch produces a unified-diff fix for one issue.
func (h *Handlers) GeneratePatch(c *gin.Context) {
	var req models.PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.autofix.GeneratePatch(c.Request.Context(), req)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindInvalidInput) {
			h.writeError(c, err)
			return
		}
		// Fallback generation failed; the result still describes the outcome.
		if h.metrics != nil {
			h.metrics.PatchesTotal.WithLabelValues("failed").Inc()
		}
		c.JSON(http.StatusInternalServerError, result)
		return
	}

	if h.metrics != nil {
		h.metrics.PatchesTotal.WithLabelValues("generated").Inc()
	}
	c.JSON(http.StatusOK, result)
}

// ApplyPatch applies a generated diff to a workspace file.
func (h *Handlers) ApplyPatch(c *gin.Context) {
	var req models.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.applier.Apply(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAnalyses returns recent analysis history.
func (h *Handlers) ListAnalyses(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"analyses": []models.AnalysisRecord{}})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := h.history.ListAnalyses(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("failed to list analyses", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analysis history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records})
}

// writeError maps the error taxonomy to HTTP statuses.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput:
		status = http.StatusBadRequest
	case apperrors.KindProviderUnavailable, apperrors.KindProviderTimeout:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
