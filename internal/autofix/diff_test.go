package autofix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDiff_ReplaceLine(t *testing.T) {
	original := []string{"one", "two", "three", "four", "five"}
	diff := renderDiff("main.tf", original, []edit{
		{Line: 2, Old: []string{"three"}, New: []string{"THREE"}},
	})

	assert.True(t, strings.HasPrefix(diff, "--- a/main.tf\n+++ b/main.tf\n"))
	assert.Contains(t, diff, "-three\n")
	assert.Contains(t, diff, "+THREE\n")
	assert.True(t, looksLikeUnifiedDiff(diff))
}

func TestRenderDiff_EmptyEdits(t *testing.T) {
	assert.Empty(t, renderDiff("main.tf", []string{"a"}, nil))
}

func TestRenderAndApply_RoundTrip(t *testing.T) {
	content := strings.Join([]string{
		"resource \"aws_security_group\" \"web\" {",
		"  name = \"web-sg\"",
		"",
		"  ingress {",
		"    from_port   = 22",
		"    to_port     = 22",
		"    protocol    = \"tcp\"",
		"    cidr_blocks = [\"0.0.0.0/0\"]",
		"  }",
		"}",
	}, "\n")
	lines := strings.Split(content, "\n")

	edits := []edit{
		{Line: 7,
			Old: []string{"    cidr_blocks = [\"0.0.0.0/0\"]"},
			New: []string{"    cidr_blocks = [\"10.0.0.0/8\"]"}},
	}

	diff := renderDiff("main.tf", lines, edits)
	require.True(t, looksLikeUnifiedDiff(diff))

	patched, err := applyUnifiedDiff(content, diff)
	require.NoError(t, err)
	assert.Contains(t, patched, "10.0.0.0/8")
	assert.NotContains(t, patched, "0.0.0.0/0")
}

func TestRenderAndApply_MultipleEdits(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, strings.Repeat("x", i+1))
	}
	content := strings.Join(lines, "\n")

	edits := []edit{
		{Line: 2, Old: []string{lines[2]}, New: []string{"first change"}},
		{Line: 20, Old: []string{lines[20]}, New: []string{"second change", "and an extra line"}},
	}

	diff := renderDiff("big.yaml", lines, edits)
	patched, err := applyUnifiedDiff(content, diff)
	require.NoError(t, err)
	assert.Contains(t, patched, "first change")
	assert.Contains(t, patched, "and an extra line")
}

func TestRenderAndApply_AdjacentEdits(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	content := strings.Join(lines, "\n")

	// The edits sit two lines apart, well inside each other's context
	// window, so they must land in a single hunk.
	edits := []edit{
		{Line: 2, Old: []string{"c"}, New: []string{"C"}},
		{Line: 4, Old: []string{"e"}, New: []string{"E", "extra"}},
	}

	diff := renderDiff("f.txt", lines, edits)
	assert.Equal(t, 1, strings.Count(diff, "@@ -"), "adjacent edits must coalesce into one hunk:\n%s", diff)

	patched, err := applyUnifiedDiff(content, diff)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nC\nd\nE\nextra\nf\ng\nh", patched)
}

func TestRenderAndApply_PureInsertion(t *testing.T) {
	lines := []string{"a", "b", "c"}
	content := strings.Join(lines, "\n")

	diff := renderDiff("f.tf", lines, []edit{
		{Line: 1, New: []string{"inserted"}},
	})

	patched, err := applyUnifiedDiff(content, diff)
	require.NoError(t, err)
	assert.Equal(t, "a\ninserted\nb\nc", patched)
}

func TestApplyUnifiedDiff_ContextMismatch(t *testing.T) {
	diff := "--- a/f\n+++ b/f\n@@ -1,3 +1,3 @@\n one\n-WRONG\n+fixed\n three\n"

	_, err := applyUnifiedDiff("one\ntwo\nthree", diff)
	require.Error(t, err)
}

func TestApplyUnifiedDiff_NoHunks(t *testing.T) {
	_, err := applyUnifiedDiff("content", "not a diff at all")
	require.Error(t, err)
}

func TestLooksLikeUnifiedDiff(t *testing.T) {
	assert.True(t, looksLikeUnifiedDiff("--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n"))
	assert.False(t, looksLikeUnifiedDiff("just some text"))
	assert.False(t, looksLikeUnifiedDiff(""))
}
