package autofix

import (
	"context"
	"fmt"
	"strings"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// TemplateGenerator is the guaranteed terminal case of patch generation. It
// recognizes the issue classes the rule engine emits and rewrites the
// offending lines directly; anything it does not recognize gets a remediation
// comment anchored at the affected resource. Either way the output is a
// non-empty, syntactically valid unified diff.
type TemplateGenerator struct {
	log logger.Logger
}

// NewTemplateGenerator creates the template fallback generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{log: logger.New("autofix.template")}
}

func (t *TemplateGenerator) Name() string { return "template" }

// Generate builds a deterministic patch for the issue. The only failure mode
// is an empty target file, reported as KindFallbackGeneration.
func (t *TemplateGenerator) Generate(ctx context.Context, req models.PatchRequest) (string, error) {
	if strings.TrimSpace(req.FileContent) == "" {
		return "", apperrors.New(apperrors.KindFallbackGeneration, "target file is empty, nothing to patch")
	}

	lines := strings.Split(req.FileContent, "\n")

	edits := matchedEdits(req, lines)
	if len(edits) == 0 {
		edits = []edit{guidanceEdit(req, lines)}
	}

	diff := renderDiff(patchPath(req), lines, edits)
	if diff == "" {
		return "", apperrors.New(apperrors.KindFallbackGeneration, "could not derive any change for the issue")
	}

	t.log.Info("template patch generated",
		logger.String("issue", req.Issue.Title),
		logger.Int("edits", len(edits)))
	return diff, nil
}

// matchedEdits tries the targeted fixers in order and returns the first
// non-empty result.
func matchedEdits(req models.PatchRequest, lines []string) []edit {
	for _, fixer := range []func(models.PatchRequest, []string) []edit{
		fixOpenIngress,
		fixPrivilegedContainer,
		fixMissingTags,
	} {
		if edits := fixer(req, lines); len(edits) > 0 {
			return edits
		}
	}
	return nil
}

// fixOpenIngress narrows any-address ingress blocks to an internal range.
func fixOpenIngress(req models.PatchRequest, lines []string) []edit {
	if !mentions(req.Issue, "0.0.0.0/0", "unrestricted") {
		return nil
	}
	var edits []edit
	for i, line := range lines {
		if strings.Contains(line, "cidr_blocks") && strings.Contains(line, "0.0.0.0/0") {
			edits = append(edits, edit{
				Line: i,
				Old:  []string{line},
				New:  []string{strings.ReplaceAll(line, "0.0.0.0/0", "10.0.0.0/8")},
			})
		}
	}
	return edits
}

// fixPrivilegedContainer drops privileged mode.
func fixPrivilegedContainer(req models.PatchRequest, lines []string) []edit {
	if !mentions(req.Issue, "privileged") {
		return nil
	}
	var edits []edit
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "privileged:") && strings.Contains(trimmed, "true") {
			edits = append(edits, edit{
				Line: i,
				Old:  []string{line},
				New:  []string{strings.Replace(line, "true", "false", 1)},
			})
		}
	}
	return edits
}

// fixMissingTags inserts a minimal tags block into the flagged resource.
func fixMissingTags(req models.PatchRequest, lines []string) []edit {
	if !mentions(req.Issue, "missing resource tags", "tags block") {
		return nil
	}
	line, ok := resourceDeclLine(req.Issue.Resource, lines)
	if !ok {
		return nil
	}
	return []edit{{
		Line: line + 1,
		New: []string{
			"  tags = {",
			fmt.Sprintf("    Name      = %q", resourceBaseName(req.Issue.Resource)),
			"    ManagedBy = \"infrapilot\"",
			"  }",
			"",
		},
	}}
}

// guidanceEdit is the unconditional terminal case: a remediation comment
// anchored at the affected resource, or at the top of the file when the
// resource cannot be located.
func guidanceEdit(req models.PatchRequest, lines []string) edit {
	anchor := 0
	if line, ok := resourceDeclLine(req.Issue.Resource, lines); ok {
		anchor = line
	}
	comment := []string{
		fmt.Sprintf("# Remediation needed: %s", req.Issue.Title),
	}
	if req.Issue.FixSuggestion != "" {
		comment = append(comment, fmt.Sprintf("# %s", req.Issue.FixSuggestion))
	}
	return edit{Line: anchor, New: comment}
}

// resourceDeclLine locates the declaration of a terraform address
// (type.name) or kubernetes workload (Kind/name) in the file.
func resourceDeclLine(resource string, lines []string) (int, bool) {
	if resource == "" || resource == "unknown" {
		return 0, false
	}

	if typ, name, ok := splitAddress(resource, "."); ok {
		needle := fmt.Sprintf("resource %q %q", typ, name)
		for i, line := range lines {
			if strings.Contains(line, needle) {
				return i, true
			}
		}
	}

	if _, name, ok := splitAddress(resource, "/"); ok {
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "name:") && strings.Contains(trimmed, name) {
				return i, true
			}
		}
	}
	return 0, false
}

func splitAddress(resource, sep string) (string, string, bool) {
	parts := strings.SplitN(resource, sep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func resourceBaseName(resource string) string {
	if _, name, ok := splitAddress(resource, "."); ok {
		return name
	}
	if _, name, ok := splitAddress(resource, "/"); ok {
		return name
	}
	return resource
}

// mentions reports whether the issue's title or description contains any of
// the needles, case-insensitively.
func mentions(issue models.IssueRef, needles ...string) bool {
	haystack := strings.ToLower(issue.Title + " " + issue.Description)
	for _, needle := range needles {
		if strings.Contains(haystack, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
