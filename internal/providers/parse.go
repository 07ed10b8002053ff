package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// buildAnalysisPrompt is the structured prompt shared by every AI backend.
// The backends are interchangeable precisely because they all answer the same
// JSON contract.
func buildAnalysisPrompt(content string, fileType models.FileType) string {
	return fmt.Sprintf(`You are an infrastructure reliability and drift analysis expert.
Analyze the provided %s configuration and respond ONLY in JSON.

Configuration:
`+"```"+`
%s
`+"```"+`

Respond with this EXACT JSON structure:
{
  "drift_score": 0-100,
  "issues": [
     {
        "id": "unique-id",
        "title": "Issue title",
        "description": "Detailed description",
        "severity": "low | medium | high | critical",
        "resource": "resource identifier",
        "fix_suggestion": "Actionable fix steps",
        "explanation": "Why this matters operationally",
        "future_impact": "What happens if left unresolved"
     }
  ],
  "timeline": [
     {"day": 0, "event": "Event description", "severity": "info|low|medium|high"}
  ]
}

Analysis Guidelines:
- Identify misconfigurations, security risks, anti-patterns, and drift indicators
- drift_score: 0-100 (0 = perfect, 100 = critical drift)
- severity: Use "critical" for security vulnerabilities, "high" for major issues
- timeline: Predict progressive effects of issues over time
- Provide realistic operational insights

Return ONLY valid JSON, no markdown, no code blocks.`, fileType, content)
}

// payload mirrors the JSON contract the prompt demands.
type payload struct {
	DriftScore json.Number `json:"drift_score"`
	Issues     []struct {
		ID            string   `json:"id"`
		Title         string   `json:"title"`
		Description   string   `json:"description"`
		Severity      string   `json:"severity"`
		Resource      string   `json:"resource"`
		FixSuggestion string   `json:"fix_suggestion"`
		Explanation   string   `json:"explanation"`
		FutureImpact  string   `json:"future_impact"`
		RLScore       *float64 `json:"rl_score"`
	} `json:"issues"`
	Timeline []struct {
		Day      int    `json:"day"`
		Event    string `json:"event"`
		Severity string `json:"severity"`
	} `json:"timeline"`
}

// parseAnalysisText turns a model's free-form answer into a Result. Models
// wrap JSON in markdown fences or prose more often than not, so the JSON body
// is carved out before decoding. Any shape that cannot be decoded is a
// malformed-response failure.
func parseAnalysisText(provider, text string) (*Result, error) {
	body, ok := extractJSON(text)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindProviderMalformed,
			"%s response contains no JSON object", provider)
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, apperrors.Wrap(apperrors.KindProviderMalformed,
			fmt.Sprintf("%s response is not valid JSON", provider), err)
	}
	if len(p.Issues) == 0 {
		return nil, apperrors.Newf(apperrors.KindProviderMalformed,
			"%s response carries no issues", provider)
	}

	result := &Result{DriftScore: normalizeDriftScore(p.DriftScore)}

	for i, raw := range p.Issues {
		issue := models.Issue{
			ID:            strings.TrimSpace(raw.ID),
			Title:         strings.TrimSpace(raw.Title),
			Description:   strings.TrimSpace(raw.Description),
			Severity:      models.NormalizeSeverity(raw.Severity),
			Resource:      strings.TrimSpace(raw.Resource),
			FixSuggestion: strings.TrimSpace(raw.FixSuggestion),
			Explanation:   strings.TrimSpace(raw.Explanation),
			FutureImpact:  strings.TrimSpace(raw.FutureImpact),
		}
		if raw.RLScore != nil && *raw.RLScore >= 0 && *raw.RLScore <= 1 {
			score := *raw.RLScore
			issue.RLScore = &score
		}
		if issue.ID == "" {
			issue.ID = fmt.Sprintf("issue-%03d-%s", i+1, uuid.NewString()[:8])
		}
		if issue.Title == "" {
			issue.Title = "Infrastructure Issue"
		}
		if issue.Resource == "" {
			issue.Resource = "unknown"
		}
		if issue.FixSuggestion == "" {
			issue.FixSuggestion = "Review and fix the configuration issue."
		}
		result.Issues = append(result.Issues, issue)
	}

	// Duplicate IDs from the model break the per-result uniqueness
	// invariant; suffix repeats.
	seen := make(map[string]int)
	for i := range result.Issues {
		id := result.Issues[i].ID
		if n := seen[id]; n > 0 {
			result.Issues[i].ID = fmt.Sprintf("%s-%d", id, n+1)
		}
		seen[id]++
	}

	for _, raw := range p.Timeline {
		if raw.Day < 0 || strings.TrimSpace(raw.Event) == "" {
			continue
		}
		result.Timeline = append(result.Timeline, models.TimelineEvent{
			Day:      raw.Day,
			Event:    strings.TrimSpace(raw.Event),
			Severity: models.NormalizeEventSeverity(raw.Severity),
		})
	}

	return result, nil
}

// extractJSON carves the outermost JSON object out of model output,
// tolerating markdown fences and surrounding prose.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if fence := strings.Index(text, "```"); fence >= 0 {
		rest := text[fence+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// normalizeDriftScore clamps provider drift estimates onto [0,1], treating
// anything above 1 as a 0-100 scale.
func normalizeDriftScore(n json.Number) float64 {
	score, err := n.Float64()
	if err != nil {
		return 0
	}
	if score > 1.0 {
		score = score / 100.0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
