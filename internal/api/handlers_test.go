package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrapilot/infrapilot/internal/analyzer"
	"github.com/infrapilot/infrapilot/internal/autofix"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/providers"
	"github.com/infrapilot/infrapilot/internal/rules"
	"github.com/infrapilot/infrapilot/internal/scoring"
	"github.com/infrapilot/infrapilot/pkg/models"
)

const openIngressContent = `
resource "aws_security_group" "web" {
  ingress {
    from_port   = 22
    to_port     = 22
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }
}
`

type fakeHistory struct {
	records []models.AnalysisRecord
	err     error
}

func (f *fakeHistory) ListAnalyses(context.Context, int) ([]models.AnalysisRecord, error) {
	return f.records, f.err
}

func testServer(t *testing.T, history History) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Providers.DefaultKind = config.ProviderRules
	cfg.Autofix.AgentPath = ""
	cfg.Autofix.AgentTimeout = time.Second
	cfg.Autofix.ApplyTimeout = 5 * time.Second

	router := providers.NewRouter(cfg, rules.NewEngine())
	pipeline := analyzer.New(router, scoring.NewRescorer(scoring.LookupScorer{}), nil)

	fixer := autofix.NewOrchestrator(cfg.Autofix)
	applier := autofix.NewApplier(cfg.Autofix)

	registry := prometheus.NewRegistry()
	handlers := NewHandlers(pipeline, fixer, applier, history, NewMetrics(registry))

	return NewServer(cfg.Server, handlers, registry).httpServer.Handler
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestAnalyzeEndpoint(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodPost, "/analyze", models.AnalyzeRequest{
		Content:  openIngressContent,
		FileType: models.FileTypeTerraform,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.AnalyzeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, providers.RulesProviderName, result.Provider)
	assert.NotEmpty(t, result.Issues)
	assert.NotEmpty(t, result.Timeline)
	assert.Greater(t, result.DriftScore, 0.0)
}

func TestAnalyzeEndpoint_BadRequests(t *testing.T) {
	h := testServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing content", map[string]string{"file_type": "terraform"}},
		{"bad file type", map[string]string{"content": "x", "file_type": "ansible"}},
		{"empty body", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAnalyzeEndpoint_WhitespaceContent(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodPost, "/analyze", models.AnalyzeRequest{
		Content:  "   \n ",
		FileType: models.FileTypeTerraform,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeneratePatchEndpoint(t *testing.T) {
	// No agent configured, so this exercises the template fallback end to end.
	w := doJSON(t, testServer(t, nil), http.MethodPost, "/autofix/generate", models.PatchRequest{
		Issue: models.IssueRef{
			Title:       "Unrestricted SSH ingress",
			Description: "Port 22 open to 0.0.0.0/0",
			Resource:    "aws_security_group.web",
		},
		FileContent: openIngressContent,
		FilePath:    "main.tf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.PatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Contains(t, result.Diff, "--- a/main.tf")
	assert.Contains(t, result.Diff, "@@")
}

func TestGeneratePatchEndpoint_BadRequest(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodPost, "/autofix/generate", map[string]any{
		"issue": map[string]string{"title": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyPatchEndpoint_BadRequest(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodPost, "/autofix/apply", map[string]string{
		"diff": "not a unified diff", "target_file": "x.tf",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAnalysesEndpoint(t *testing.T) {
	history := &fakeHistory{records: []models.AnalysisRecord{
		{ID: "run-1", FileType: models.FileTypeTerraform, Provider: "rules", DriftScore: 0.7, IssueCount: 2},
	}}

	w := doJSON(t, testServer(t, history), http.MethodGet, "/api/v1/analyses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")
}

func TestListAnalysesEndpoint_BadLimit(t *testing.T) {
	w := doJSON(t, testServer(t, &fakeHistory{}), http.MethodGet, "/api/v1/analyses?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAnalysesEndpoint_NoStore(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodGet, "/api/v1/analyses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "analyses")
}

func TestModelsEndpoint(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "llama3")
	assert.Contains(t, w.Body.String(), "gemini")
}

func TestRateLimiting(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.DefaultKind = config.ProviderRules
	cfg.Server.RateLimitRPS = 1

	router := providers.NewRouter(cfg, rules.NewEngine())
	pipeline := analyzer.New(router, scoring.NewRescorer(scoring.LookupScorer{}), nil)
	handlers := NewHandlers(pipeline, autofix.NewOrchestrator(cfg.Autofix), autofix.NewApplier(cfg.Autofix), nil, nil)
	h := NewServer(cfg.Server, handlers, nil).httpServer.Handler

	// Burst is twice the rate; the bucket drains after two rapid requests.
	limited := false
	for i := 0; i < 5; i++ {
		w := doJSON(t, h, http.MethodGet, "/", nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "expected at least one rate-limited response")
}

func TestRateLimiterTableStaysBounded(t *testing.T) {
	limiters := newClientLimiters(1)
	for i := 0; i < maxLimiterClients+500; i++ {
		limiters.get(fmt.Sprintf("10.%d.%d.%d", i>>16&255, i>>8&255, i&255))
	}
	assert.LessOrEqual(t, len(limiters.buckets), maxLimiterClients)

	// Clients still get working buckets after a reset.
	assert.True(t, limiters.get("192.168.1.1").Allow())
}

func TestRequestIDHeader(t *testing.T) {
	w := doJSON(t, testServer(t, nil), http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := testServer(t, nil)

	// Drive one analysis so the counter is present in the exposition.
	doJSON(t, h, http.MethodPost, "/analyze", models.AnalyzeRequest{
		Content:  openIngressContent,
		FileType: models.FileTypeTerraform,
	})

	w := doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "infrapilot_analyses_total")
}
