package models

import "strings"

// FileType identifies the kind of infrastructure source being analyzed.
type FileType string

const (
	FileTypeTerraform  FileType = "terraform"
	FileTypeKubernetes FileType = "kubernetes"
)

// Valid reports whether the file type is one the pipeline understands.
func (f FileType) Valid() bool {
	return f == FileTypeTerraform || f == FileTypeKubernetes
}

// Severity is the totally ordered severity scale shared by the rule engine,
// the providers, the rescorer and the drift aggregator.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities; higher rank is more severe.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// severityWeight is the single weight table used for drift scoring and
// rescoring so escalation rules are enforced in one place.
var severityWeight = map[Severity]float64{
	SeverityLow:      0.2,
	SeverityMedium:   0.4,
	SeverityHigh:     0.7,
	SeverityCritical: 0.95,
}

// Rank returns the ordinal position of the severity. Unknown severities rank
// below low so normalization catches them.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Weight returns the drift-score weight for the severity. Unknown severities
// weigh as medium.
func (s Severity) Weight() float64 {
	if w, ok := severityWeight[s]; ok {
		return w
	}
	return severityWeight[SeverityMedium]
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Max returns the more severe of the two.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// NormalizeSeverity maps free-form severity strings coming back from AI
// providers onto the fixed scale. Unknown values land on medium.
func NormalizeSeverity(raw string) Severity {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch Severity(v) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(v)
	}
	switch v {
	case "info", "minor":
		return SeverityLow
	case "major", "severe":
		return SeverityHigh
	}
	return SeverityMedium
}

// EventSeverity is the severity scale used by timeline events. It is narrower
// than the issue scale; critical issues project as high events.
type EventSeverity string

const (
	EventSeverityInfo   EventSeverity = "info"
	EventSeverityLow    EventSeverity = "low"
	EventSeverityMedium EventSeverity = "medium"
	EventSeverityHigh   EventSeverity = "high"
)

// TimelineSeverity maps an issue severity onto the timeline scale.
func (s Severity) TimelineSeverity() EventSeverity {
	switch s {
	case SeverityLow:
		return EventSeverityLow
	case SeverityMedium:
		return EventSeverityMedium
	case SeverityHigh, SeverityCritical:
		return EventSeverityHigh
	}
	return EventSeverityMedium
}

// NormalizeEventSeverity maps free-form timeline severities onto the fixed
// event scale.
func NormalizeEventSeverity(raw string) EventSeverity {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch EventSeverity(v) {
	case EventSeverityInfo, EventSeverityLow, EventSeverityMedium, EventSeverityHigh:
		return EventSeverity(v)
	}
	switch v {
	case "warning", "warn":
		return EventSeverityMedium
	case "critical", "error":
		return EventSeverityHigh
	}
	return EventSeverityInfo
}

// Issue is one detected misconfiguration or risk. Issues are created by the
// rule engine or an analysis provider and mutated only by the rescorer.
type Issue struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Severity      Severity `json:"severity"`
	Resource      string   `json:"resource"`
	FixSuggestion string   `json:"fix_suggestion"`
	Explanation   string   `json:"explanation,omitempty"`
	FutureImpact  string   `json:"future_impact,omitempty"`
	// RLScore is the secondary model's 0-1 drift-risk score, nil when the
	// rescoring backend never saw the issue.
	RLScore *float64 `json:"rl_score,omitempty"`
}

// Ref returns the subset of the issue the autofix path needs.
func (i Issue) Ref() IssueRef {
	return IssueRef{
		Title:         i.Title,
		Description:   i.Description,
		FixSuggestion: i.FixSuggestion,
		Resource:      i.Resource,
	}
}

// TimelineEvent is one projected milestone in an issue's unresolved
// escalation. Day 0 is the moment of detection.
type TimelineEvent struct {
	Day      int           `json:"day"`
	Event    string        `json:"event"`
	Severity EventSeverity `json:"severity"`
}

// AnalyzeRequest is the immutable per-call input to the analysis pipeline.
type AnalyzeRequest struct {
	Content  string   `json:"content" binding:"required"`
	FileType FileType `json:"file_type" binding:"required,oneof=terraform kubernetes"`
	// Model selects provider+model; empty means the configured default.
	Model string `json:"model,omitempty"`
}

// AnalyzeResult is the complete output of one analysis run.
type AnalyzeResult struct {
	DriftScore float64         `json:"drift_score"`
	Timeline   []TimelineEvent `json:"timeline"`
	Issues     []Issue         `json:"issues"`
	// Provider names the backend that actually produced the issue list;
	// "rules" when every AI backend failed or none was configured.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// IssueRef is the subset of an issue the autofix path needs.
type IssueRef struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	FixSuggestion string `json:"fix_suggestion"`
	Resource      string `json:"resource"`
}

// PatchRequest asks for a unified-diff remediation of one issue.
type PatchRequest struct {
	Issue       IssueRef `json:"issue" binding:"required"`
	FileContent string   `json:"file_content" binding:"required"`
	FilePath    string   `json:"file_path"`
}

// PatchResult carries the generated diff. Success is true on both the agent
// and the template path; Message records which path ran.
type PatchResult struct {
	Success bool   `json:"success"`
	Diff    string `json:"diff"`
	Message string `json:"message"`
}

// ApplyRequest asks for a diff to be applied to a workspace file.
type ApplyRequest struct {
	Diff          string `json:"diff" binding:"required"`
	TargetFile    string `json:"target_file" binding:"required"`
	WorkspacePath string `json:"workspace_path,omitempty"`
}

// ApplyResult reports the outcome of a patch application.
type ApplyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AnalysisRecord is one persisted analysis run summary.
type AnalysisRecord struct {
	ID         string   `json:"id"`
	FileType   FileType `json:"file_type"`
	Provider   string   `json:"provider"`
	Model      string   `json:"model,omitempty"`
	DriftScore float64  `json:"drift_score"`
	IssueCount int      `json:"issue_count"`
	CreatedAt  string   `json:"created_at"`
}
