package autofix

import (
	"bytes"
	"context"
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

// Applier applies generated diffs to workspace files. It shells out to the
// patch binary when available and falls back to in-process application
// otherwise.
type Applier struct {
	cfg config.AutofixConfig
	log logger.Logger
}

// NewApplier creates a patch applier.
func NewApplier(cfg config.AutofixConfig) *Applier {
	return &Applier{
		cfg: cfg,
		log: logger.New("autofix.apply"),
	}
}

// Apply applies the diff to the target file. Failures never panic and never
// leave a half-patched file behind; the result carries success and a
// human-readable message.
func (a *Applier) Apply(ctx context.Context, req models.ApplyRequest) (*models.ApplyResult, error) {
	if strings.TrimSpace(req.Diff) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "diff must not be empty")
	}
	if strings.TrimSpace(req.TargetFile) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "target_file must not be empty")
	}
	if !looksLikeUnifiedDiff(req.Diff) {
		return nil, apperrors.New(apperrors.KindInvalidInput, "diff is not in unified format")
	}

	workspace := req.WorkspacePath
	if workspace == "" {
		workspace = "."
	}
	target := filepath.Join(workspace, req.TargetFile)
	if rel, err := filepath.Rel(workspace, target); err != nil ||
		rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, apperrors.New(apperrors.KindInvalidInput, "target_file must stay inside the workspace")
	}
	if _, err := os.Stat(target); err != nil {
		return &models.ApplyResult{
			Success: false,
			Message: fmt.Sprintf("target file not found: %s", req.TargetFile),
		}, nil
	}

	log := a.log.WithContext(ctx).WithFields(logger.String("target", req.TargetFile))

	if _, err := exec.LookPath("patch"); err == nil {
		if msg, err := a.applyWithPatch(ctx, workspace, req.Diff); err == nil {
			log.Info("patch applied", logger.String("via", "patch"))
			return &models.ApplyResult{Success: true, Message: msg}, nil
		} else {
			log.Warn("patch binary failed, applying in process", logger.Error(err))
		}
	}

	if err := a.applyInProcess(target, req.Diff); err != nil {
		log.Error("in-process apply failed", logger.Error(err))
		return &models.ApplyResult{
			Success: false,
			Message: fmt.Sprintf("failed to apply patch: %v", err),
		}, nil
	}

	log.Info("patch applied", logger.String("via", "in-process"))
	return &models.ApplyResult{Success: true, Message: "patch applied"}, nil
}

// applyWithPatch runs the system patch binary inside the workspace.
func (a *Applier) applyWithPatch(ctx context.Context, workspace, diff string) (string, error) {
	tmp, err := os.CreateTemp("", "infrapilot-*.patch")
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to stage patch file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(diff); err != nil {
		tmp.Close()
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to write patch file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to write patch file", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ApplyTimeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "patch", "-p1", "--batch", "-i", tmp.Name())
	cmd.Dir = workspace

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", apperrors.Newf(apperrors.KindInternal,
				"patch timed out after %s", a.cfg.ApplyTimeout.Round(time.Second))
		}
		return "", apperrors.Newf(apperrors.KindInternal,
			"patch failed: %s", strings.TrimSpace(output.String()))
	}
	return strings.TrimSpace(output.String()), nil
}

// applyInProcess rewrites the target file through the hunk applier. The file
// is replaced atomically via a sibling temp file.
func (a *Applier) applyInProcess(target, diff string) error {
	content, err := os.ReadFile(target)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to read target file", err)
	}

	patched, err := applyUnifiedDiff(string(content), diff)
	if err != nil {
		return err
	}

	tmp := target + ".patched"
	if err := os.WriteFile(tmp, []byte(patched), 0644); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to write patched file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.KindInternal, "failed to replace target file", err)
	}
	return nil
}
