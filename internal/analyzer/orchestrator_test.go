package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrapilot/infrapilot/internal/apperrors"
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

// rulesOnlyOrchestrator builds a pipeline that never leaves the process.
func rulesOnlyOrchestrator(recorder Recorder) *Orchestrator {
	cfg := config.Default()
	cfg.Providers.DefaultKind = config.ProviderRules

	router := providers.NewRouter(cfg, rules.NewEngine())
	return New(router, scoring.NewRescorer(scoring.LookupScorer{}), recorder)
}

type captureRecorder struct {
	recorded int
	err      error
}

func (c *captureRecorder) RecordAnalysis(context.Context, *models.AnalyzeResult, models.FileType) error {
	c.recorded++
	return c.err
}

func TestAnalyze_RejectsInvalidInput(t *testing.T) {
	o := rulesOnlyOrchestrator(nil)

	tests := []struct {
		name string
		req  models.AnalyzeRequest
	}{
		{"empty content", models.AnalyzeRequest{Content: "", FileType: models.FileTypeTerraform}},
		{"whitespace content", models.AnalyzeRequest{Content: " \n\t ", FileType: models.FileTypeTerraform}},
		{"unknown file type", models.AnalyzeRequest{Content: "x", FileType: models.FileType("ansible")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := o.Analyze(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))
		})
	}
}

func TestAnalyze_CompleteResult(t *testing.T) {
	o := rulesOnlyOrchestrator(nil)

	result, err := o.Analyze(context.Background(), models.AnalyzeRequest{
		Content:  openIngressContent,
		FileType: models.FileTypeTerraform,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, providers.RulesProviderName, result.Provider)
	assert.NotEmpty(t, result.Issues)
	assert.NotEmpty(t, result.Timeline)
	assert.GreaterOrEqual(t, result.DriftScore, 0.0)
	assert.LessOrEqual(t, result.DriftScore, 1.0)

	// An open ingress finding alone must push the score past the midpoint.
	assert.Greater(t, result.DriftScore, 0.5)

	for i := 1; i < len(result.Timeline); i++ {
		assert.GreaterOrEqual(t, result.Timeline[i].Day, result.Timeline[i-1].Day)
	}
}

func TestAnalyze_CleanInputScoresZero(t *testing.T) {
	o := rulesOnlyOrchestrator(nil)

	result, err := o.Analyze(context.Background(), models.AnalyzeRequest{
		Content:  "# just a comment\n",
		FileType: models.FileTypeTerraform,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
	assert.Equal(t, 0.0, result.DriftScore)
	require.NotEmpty(t, result.Timeline, "an empty issue set still gets a day-zero event")
	assert.Equal(t, 0, result.Timeline[0].Day)
}

func TestAnalyze_RecordsHistory(t *testing.T) {
	rec := &captureRecorder{}
	o := rulesOnlyOrchestrator(rec)

	_, err := o.Analyze(context.Background(), models.AnalyzeRequest{
		Content:  openIngressContent,
		FileType: models.FileTypeTerraform,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.recorded)
}

func TestAnalyze_RecorderFailureIsNotFatal(t *testing.T) {
	rec := &captureRecorder{err: errors.New("disk full")}
	o := rulesOnlyOrchestrator(rec)

	result, err := o.Analyze(context.Background(), models.AnalyzeRequest{
		Content:  openIngressContent,
		FileType: models.FileTypeTerraform,
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
}
