package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/rules"
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

// stubProvider scripts one backend response.
type stubProvider struct {
	name   string
	result *Result
	err    error
	delay  time.Duration
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Analyze(ctx context.Context, content string, fileType models.FileType, model string) (*Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindProviderTimeout, "analysis timed out", ctx.Err())
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers.DefaultKind = config.ProviderOllama
	cfg.Providers.DefaultModel = "llama3:latest"
	cfg.Providers.Ollama.Timeout = 50 * time.Millisecond
	return cfg
}

func TestRoute_HealthyProvider(t *testing.T) {
	want := &Result{
		Issues: []models.Issue{{ID: "ai-1", Title: "Found by AI", Severity: models.SeverityHigh}},
	}
	router := NewRouter(testConfig(), rules.NewEngine()).
		WithBackend(config.ProviderOllama, &stubProvider{name: "ollama", result: want})

	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "llama3:latest")

	assert.Equal(t, "ollama", got.Provider)
	assert.Equal(t, "llama3:latest", got.Model)
	assert.False(t, got.FellBack)
	assert.Equal(t, want.Issues, got.Issues)
}

func TestRoute_ProviderErrorFallsBackToRules(t *testing.T) {
	router := NewRouter(testConfig(), rules.NewEngine()).
		WithBackend(config.ProviderOllama, &stubProvider{
			name: "ollama",
			err:  apperrors.New(apperrors.KindProviderUnavailable, "connection refused"),
		})

	fallbacks := 0
	router.OnFallback(func(string) { fallbacks++ })

	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "llama3:latest")

	assert.Equal(t, RulesProviderName, got.Provider)
	assert.True(t, got.FellBack)
	assert.Equal(t, 1, fallbacks)
	require.NotEmpty(t, got.Issues, "rule engine should find the open ingress")
}

func TestRoute_ProviderTimeoutFallsBackToRules(t *testing.T) {
	router := NewRouter(testConfig(), rules.NewEngine()).
		WithBackend(config.ProviderOllama, &stubProvider{
			name:   "ollama",
			delay:  time.Second,
			result: &Result{},
		})

	start := time.Now()
	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "llama3:latest")

	assert.Equal(t, RulesProviderName, got.Provider)
	assert.True(t, got.FellBack)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"the provider budget must bound the wait")
}

func TestRoute_MalformedOutputIsAFailure(t *testing.T) {
	router := NewRouter(testConfig(), rules.NewEngine()).
		WithBackend(config.ProviderOllama, &stubProvider{
			name: "ollama",
			err:  apperrors.New(apperrors.KindProviderMalformed, "no issues array in response"),
		})

	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "llama3:latest")
	assert.Equal(t, RulesProviderName, got.Provider)
	assert.True(t, got.FellBack)
}

func TestRoute_UnclassifiedErrorStillFallsBack(t *testing.T) {
	// Errors outside the provider failure taxonomy are logged differently
	// but degrade the same way.
	router := NewRouter(testConfig(), rules.NewEngine()).
		WithBackend(config.ProviderOllama, &stubProvider{
			name: "ollama",
			err:  errors.New("nil pointer dereference in backend"),
		})

	fallbacks := 0
	router.OnFallback(func(string) { fallbacks++ })

	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "llama3:latest")
	assert.Equal(t, RulesProviderName, got.Provider)
	assert.True(t, got.FellBack)
	assert.Equal(t, 1, fallbacks)
}

func TestRoute_RulesOnlyModeIsNotAFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.DefaultKind = config.ProviderRules

	router := NewRouter(cfg, rules.NewEngine())
	router.OnFallback(func(string) { t.Fatal("rules-only mode must not count as a fallback") })

	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "")
	assert.Equal(t, RulesProviderName, got.Provider)
	assert.False(t, got.FellBack)
	assert.NotEmpty(t, got.Issues)
}

func TestRoute_GeminiSelectorWithoutKeyUsesRules(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.Gemini.APIKey = ""

	router := NewRouter(cfg, rules.NewEngine()).
		WithBackend(config.ProviderGemini, &stubProvider{
			name: "gemini",
			err:  errors.New("must not be called"),
		})

	got := router.Route(context.Background(), openIngressContent, models.FileTypeTerraform, "gemini-1.5-pro")
	assert.Equal(t, RulesProviderName, got.Provider)
}

func TestRoute_NeverReturnsNil(t *testing.T) {
	router := NewRouter(testConfig(), rules.NewEngine()).
		WithBackend(config.ProviderOllama, &stubProvider{
			name: "ollama",
			err:  errors.New("boom"),
		})

	got := router.Route(context.Background(), "", models.FileTypeTerraform, "llama3:latest")
	require.NotNil(t, got)
	assert.NotNil(t, got.Issues)
}
