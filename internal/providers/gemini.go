package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// modelAliases maps friendly Gemini model names onto concrete model IDs.
var modelAliases = map[string]string{
	"gemini-pro":       "gemini-1.5-pro",
	"gemini-2.0-flash": "gemini-2.0-flash-exp",
}

// GeminiProvider is the cloud-hosted analysis backend. The API key travels as
// a URL query parameter per Google's REST convention.
type GeminiProvider struct {
	cfg    config.GeminiConfig
	client *http.Client
	log    logger.Logger
}

// NewGeminiProvider creates the cloud provider. The http.Client is shared
// across calls for connection reuse only; per-call state lives in the
// request context.
func NewGeminiProvider(cfg config.GeminiConfig) *GeminiProvider {
	return &GeminiProvider{
		cfg: cfg,
		client: &http.Client{
			// Generous transport cap; the per-call budget comes from ctx.
			Timeout: cfg.Timeout + 10*time.Second,
		},
		log: logger.New("provider.gemini"),
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// geminiRequest and geminiResponse mirror the generateContent wire format.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the full file to the generateContent endpoint and parses the
// structured JSON answer.
func (g *GeminiProvider) Analyze(ctx context.Context, content string, fileType models.FileType, model string) (*Result, error) {
	if g.cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.KindProviderUnavailable, "gemini API key not configured")
	}

	if actual, ok := modelAliases[model]; ok {
		model = actual
	}
	if model == "" {
		model = g.cfg.Model
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: buildAnalysisPrompt(content, fileType)}}}},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to encode gemini request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.cfg.BaseURL, model, g.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to build gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	g.log.Debug("calling gemini", logger.String("model", model))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("gemini", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.Newf(apperrors.KindProviderUnavailable,
			"gemini returned HTTP %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindProviderMalformed, "gemini response body is not JSON", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, apperrors.New(apperrors.KindProviderMalformed, "gemini response has no candidates")
	}

	return parseAnalysisText("gemini", parsed.Candidates[0].Content.Parts[0].Text)
}

// classifyTransportError maps transport failures onto the provider error
// taxonomy: deadline and timeout errors become ProviderTimeout, everything
// else ProviderUnavailable.
func classifyTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindProviderTimeout,
			fmt.Sprintf("%s call exceeded its budget", provider), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(apperrors.KindProviderTimeout,
			fmt.Sprintf("%s call timed out", provider), err)
	}
	return apperrors.Wrap(apperrors.KindProviderUnavailable,
		fmt.Sprintf("%s endpoint unreachable", provider), err)
}
