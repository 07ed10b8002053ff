// Package autofix turns one detected issue into a unified-diff remediation.
// The preferred path delegates to an external code-editing agent; a
// deterministic template generator guarantees that patch generation almost
// never fails outright.
package autofix

import (
	"context"

	"github.com/infrapilot/infrapilot/pkg/models"
)

// Generator produces a unified-diff fix for one issue.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req models.PatchRequest) (string, error)
}
