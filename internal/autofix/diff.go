package autofix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/infrapilot/infrapilot/internal/apperrors"
)

// edit is one localized change to a file: the lines starting at Line (0-based
// index into the original) are replaced by New. Insertions carry an empty
// Old slice.
type edit struct {
	Line int
	Old  []string
	New  []string
}

// contextLines is the amount of surrounding context emitted per hunk.
const contextLines = 3

// renderDiff emits a unified diff for a set of non-overlapping edits,
// ordered by line. Edits whose context windows touch are coalesced into one
// hunk, so close-together changes never produce hunks that claim the same
// lines. The header uses the conventional a/ and b/ prefixes so the output
// applies with patch -p1.
func renderDiff(path string, original []string, edits []edit) string {
	if len(edits) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	// Running offset between original and patched line numbers.
	offset := 0
	for i := 0; i < len(edits); {
		// Extend the group while the next edit's context window reaches
		// into this one's.
		j := i
		end := edits[j].Line + len(edits[j].Old) + contextLines
		for j+1 < len(edits) && edits[j+1].Line-contextLines <= end {
			j++
			if e := edits[j].Line + len(edits[j].Old) + contextLines; e > end {
				end = e
			}
		}
		group := edits[i : j+1]

		start := group[0].Line - contextLines
		if start < 0 {
			start = 0
		}
		if end > len(original) {
			end = len(original)
		}

		oldCount := end - start
		newCount := oldCount
		for _, e := range group {
			newCount += len(e.New) - len(e.Old)
		}

		// Hunk headers are 1-based; a zero-length side points at the
		// preceding line.
		oldStart := start + 1
		if oldCount == 0 {
			oldStart = start
		}
		newStart := start + offset + 1
		if newCount == 0 {
			newStart = start + offset
		}

		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		pos := start
		for _, e := range group {
			for ; pos < e.Line; pos++ {
				fmt.Fprintf(&b, " %s\n", original[pos])
			}
			for _, line := range e.Old {
				fmt.Fprintf(&b, "-%s\n", line)
			}
			for _, line := range e.New {
				fmt.Fprintf(&b, "+%s\n", line)
			}
			pos = e.Line + len(e.Old)
		}
		for ; pos < end; pos++ {
			fmt.Fprintf(&b, " %s\n", original[pos])
		}

		offset += newCount - oldCount
		i = j + 1
	}
	return b.String()
}

// looksLikeUnifiedDiff is the acceptance check for agent output: a proper
// header pair and at least one hunk.
func looksLikeUnifiedDiff(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.Contains(trimmed, "--- ") &&
		strings.Contains(trimmed, "+++ ") &&
		strings.Contains(trimmed, "@@")
}

// hunk is one parsed @@ block.
type hunk struct {
	oldStart int
	oldCount int
	lines    []string
}

// applyUnifiedDiff applies a unified diff to content in process. It is the
// fallback for hosts without a patch binary. Context lines are verified;
// any mismatch aborts rather than corrupting the file.
func applyUnifiedDiff(content, diff string) (string, error) {
	hunks, err := parseHunks(diff)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return "", apperrors.New(apperrors.KindInternal, "diff contains no hunks")
	}

	original := strings.Split(content, "\n")
	var out []string
	cursor := 0

	for _, h := range hunks {
		start := h.oldStart - 1
		if h.oldCount == 0 {
			start = h.oldStart
		}
		if start < cursor || start > len(original) {
			return "", apperrors.Newf(apperrors.KindInternal, "hunk at line %d does not fit the file", h.oldStart)
		}
		out = append(out, original[cursor:start]...)
		cursor = start

		for _, line := range h.lines {
			if line == "" {
				continue
			}
			marker, text := line[0], line[1:]
			switch marker {
			case ' ', '-':
				if cursor >= len(original) || original[cursor] != text {
					return "", apperrors.Newf(apperrors.KindInternal, "hunk context mismatch near line %d", cursor+1)
				}
				if marker == ' ' {
					out = append(out, text)
				}
				cursor++
			case '+':
				out = append(out, text)
			case '\\':
				// "\ No newline at end of file" marker, nothing to do.
			default:
				return "", apperrors.Newf(apperrors.KindInternal, "unexpected diff line %q", line)
			}
		}
	}

	out = append(out, original[cursor:]...)
	return strings.Join(out, "\n"), nil
}

func parseHunks(diff string) ([]hunk, error) {
	var hunks []hunk
	var current *hunk

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			continue
		case strings.HasPrefix(line, "@@"):
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, h)
			current = &hunks[len(hunks)-1]
		default:
			if current != nil && line != "" {
				current.lines = append(current.lines, line)
			}
		}
	}
	return hunks, nil
}

// parseHunkHeader reads "@@ -l,c +l,c @@" headers; the count defaults to 1
// when omitted.
func parseHunkHeader(line string) (hunk, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || !strings.HasPrefix(fields[1], "-") {
		return hunk{}, apperrors.Newf(apperrors.KindInternal, "malformed hunk header %q", line)
	}
	spec := strings.TrimPrefix(fields[1], "-")
	start, count := spec, "1"
	if idx := strings.Index(spec, ","); idx >= 0 {
		start, count = spec[:idx], spec[idx+1:]
	}
	oldStart, err := strconv.Atoi(start)
	if err != nil {
		return hunk{}, apperrors.Newf(apperrors.KindInternal, "malformed hunk header %q", line)
	}
	oldCount, err := strconv.Atoi(count)
	if err != nil {
		return hunk{}, apperrors.Newf(apperrors.KindInternal, "malformed hunk header %q", line)
	}
	return hunk{oldStart: oldStart, oldCount: oldCount}, nil
}
