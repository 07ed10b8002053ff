package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// OllamaProvider is the locally-hosted analysis backend, talking to an
// Ollama daemon over its generate API.
type OllamaProvider struct {
	cfg    config.OllamaConfig
	client *http.Client
	log    logger.Logger
}

// NewOllamaProvider creates the local provider.
func NewOllamaProvider(cfg config.OllamaConfig) *OllamaProvider {
	return &OllamaProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout + 10*time.Second,
		},
		log: logger.New("provider.ollama"),
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Analyze sends the full file to the local daemon. Local models are slower
// than cloud ones, so the caller budgets a longer timeout via ctx.
func (o *OllamaProvider) Analyze(ctx context.Context, content string, fileType models.FileType, model string) (*Result, error) {
	if model == "" {
		model = o.cfg.Model
	}

	body, err := json.Marshal(ollamaRequest{
		Model:  model,
		Prompt: buildAnalysisPrompt(content, fileType),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to encode ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.log.Debug("calling ollama", logger.String("model", model))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.Newf(apperrors.KindProviderUnavailable,
			"ollama returned HTTP %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindProviderMalformed, "ollama response body is not JSON", err)
	}
	if parsed.Response == "" {
		return nil, apperrors.New(apperrors.KindProviderMalformed, "ollama returned an empty response")
	}

	return parseAnalysisText("ollama", parsed.Response)
}
