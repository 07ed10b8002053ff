package autofix

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrapilot/infrapilot/internal/apperrors"
	"github.com/infrapilot/infrapilot/pkg/models"
)

func TestTemplateGenerate_OpenIngress(t *testing.T) {
	gen := NewTemplateGenerator()

	diff, err := gen.Generate(context.Background(), patchRequest())
	require.NoError(t, err)

	require.True(t, looksLikeUnifiedDiff(diff))
	assert.Contains(t, diff, "-    cidr_blocks = [\"0.0.0.0/0\"]")
	assert.Contains(t, diff, "+    cidr_blocks = [\"10.0.0.0/8\"]")

	patched, err := applyUnifiedDiff(sgFileContent, diff)
	require.NoError(t, err)
	assert.NotContains(t, patched, "0.0.0.0/0")
}

func TestTemplateGenerate_CompactDuplicateIngress(t *testing.T) {
	gen := NewTemplateGenerator()

	// A compact security group puts both open ingress lines inside one
	// context window; the generated patch must still apply in process.
	req := patchRequest()
	req.FileContent = strings.Join([]string{
		"resource \"aws_security_group\" \"web\" {",
		"  ingress {",
		"    cidr_blocks = [\"0.0.0.0/0\"]",
		"  }",
		"  ingress {",
		"    cidr_blocks = [\"0.0.0.0/0\"]",
		"  }",
		"}",
	}, "\n")

	diff, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(diff, "-    cidr_blocks"))

	patched, err := applyUnifiedDiff(req.FileContent, diff)
	require.NoError(t, err, "generated diff must apply to its own input:\n%s", diff)
	assert.NotContains(t, patched, "0.0.0.0/0")
	assert.Equal(t, 2, strings.Count(patched, "10.0.0.0/8"))
}

func TestTemplateGenerate_PrivilegedContainer(t *testing.T) {
	gen := NewTemplateGenerator()

	req := models.PatchRequest{
		Issue: models.IssueRef{
			Title:       "Privileged container",
			Description: "Container runs with privileged: true",
			Resource:    "Deployment/edge-proxy",
		},
		FileContent: strings.Join([]string{
			"spec:",
			"  containers:",
			"    - name: proxy",
			"      securityContext:",
			"        privileged: true",
		}, "\n"),
		FilePath: "deploy.yaml",
	}

	diff, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, diff, "-        privileged: true")
	assert.Contains(t, diff, "+        privileged: false")
}

func TestTemplateGenerate_MissingTags(t *testing.T) {
	gen := NewTemplateGenerator()

	req := models.PatchRequest{
		Issue: models.IssueRef{
			Title:       "Missing resource tags",
			Description: "aws_instance.app has no tags block",
			Resource:    "aws_instance.app",
		},
		FileContent: strings.Join([]string{
			"resource \"aws_instance\" \"app\" {",
			"  ami           = \"ami-12345678\"",
			"  instance_type = \"t3.micro\"",
			"}",
		}, "\n"),
		FilePath: "main.tf",
	}

	diff, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, diff, "+  tags = {")
	assert.Contains(t, diff, "app")
}

func TestTemplateGenerate_UnrecognizedIssueStillProducesDiff(t *testing.T) {
	gen := NewTemplateGenerator()

	req := models.PatchRequest{
		Issue: models.IssueRef{
			Title:         "Exotic problem nobody has a fixer for",
			Description:   "Something unusual",
			FixSuggestion: "Consult the runbook.",
			Resource:      "unknown",
		},
		FileContent: "resource \"aws_thing\" \"x\" {\n}\n",
		FilePath:    "main.tf",
	}

	diff, err := gen.Generate(context.Background(), req)
	require.NoError(t, err, "the template path must always produce a patch")
	require.True(t, looksLikeUnifiedDiff(diff))
	assert.Contains(t, diff, "+# Remediation needed: Exotic problem nobody has a fixer for")
	assert.Contains(t, diff, "+# Consult the runbook.")
}

func TestTemplateGenerate_EmptyFileFails(t *testing.T) {
	gen := NewTemplateGenerator()

	req := patchRequest()
	req.FileContent = "   \n\t"
	_, err := gen.Generate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindFallbackGeneration))
}
