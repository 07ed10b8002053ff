package autofix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// AgentGenerator invokes an out-of-process code-editing agent. The call is a
// black box: the file and a prompt go in, a unified diff comes back on
// stdout within the timeout, or the call fails. Every failure mode maps to
// KindAgentInvocation so the orchestrator can fall back.
type AgentGenerator struct {
	cfg config.AutofixConfig
	log logger.Logger
}

// NewAgentGenerator creates the external-agent generator.
func NewAgentGenerator(cfg config.AutofixConfig) *AgentGenerator {
	return &AgentGenerator{
		cfg: cfg,
		log: logger.New("autofix.agent"),
	}
}

func (a *AgentGenerator) Name() string { return "agent" }

// Generate writes the file into a scratch workspace and asks the agent for a
// fix in diff form.
func (a *AgentGenerator) Generate(ctx context.Context, req models.PatchRequest) (string, error) {
	if a.cfg.AgentPath == "" {
		return "", apperrors.New(apperrors.KindAgentInvocation, "no patch agent configured")
	}
	if _, err := exec.LookPath(a.cfg.AgentPath); err != nil {
		return "", apperrors.Wrap(apperrors.KindAgentInvocation, "patch agent not found", err)
	}

	workDir, err := os.MkdirTemp("", "infrapilot-autofix-")
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindAgentInvocation, "failed to create scratch workspace", err)
	}
	defer os.RemoveAll(workDir)

	target := filepath.Join(workDir, filepath.Base(patchPath(req)))
	if err := os.WriteFile(target, []byte(req.FileContent), 0644); err != nil {
		return "", apperrors.Wrap(apperrors.KindAgentInvocation, "failed to stage file for agent", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.AgentTimeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, a.cfg.AgentPath,
		"fix", target,
		"--prompt", buildFixPrompt(req),
		"--output", "diff",
	)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.log.Info("invoking patch agent",
		logger.String("issue", req.Issue.Title),
		logger.Duration("timeout", a.cfg.AgentTimeout))

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", apperrors.Newf(apperrors.KindAgentInvocation,
			"patch agent timed out after %s", elapsed.Round(time.Millisecond))
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", apperrors.Newf(apperrors.KindAgentInvocation, "patch agent failed: %s", detail)
	}

	diff := strings.TrimSpace(stdout.String())
	if diff == "" {
		return "", apperrors.New(apperrors.KindAgentInvocation, "patch agent returned empty output")
	}
	if !looksLikeUnifiedDiff(diff) {
		return "", apperrors.New(apperrors.KindAgentInvocation, "patch agent output is not a unified diff")
	}

	a.log.Info("patch agent produced a diff",
		logger.Int("bytes", len(diff)),
		logger.Duration("elapsed", elapsed))
	return diff, nil
}

// buildFixPrompt describes the issue and the desired fix to the agent.
func buildFixPrompt(req models.PatchRequest) string {
	parts := []string{
		fmt.Sprintf("Fix the following infrastructure issue in %s:", patchPath(req)),
		"",
		fmt.Sprintf("Issue: %s", req.Issue.Title),
		fmt.Sprintf("Description: %s", req.Issue.Description),
		fmt.Sprintf("Resource: %s", req.Issue.Resource),
	}
	if req.Issue.FixSuggestion != "" {
		parts = append(parts, "", fmt.Sprintf("Suggested approach: %s", req.Issue.FixSuggestion))
	}
	parts = append(parts, "",
		"Generate a patch that fixes this issue while maintaining",
		"the overall infrastructure configuration.")
	return strings.Join(parts, "\n")
}

// patchPath returns the path used in prompts and diff headers.
func patchPath(req models.PatchRequest) string {
	if req.FilePath != "" {
		return req.FilePath
	}
	return "infrastructure.tf"
}
