// Package timeline projects a day-indexed escalation narrative from a set of
// detected issues: what worsens, and by which day, if nothing is fixed.
package timeline

import (
	"fmt"
	"sort"

	"github.com/infrapilot/infrapilot/pkg/models"
)

// escalationDays is the day spacing between successive escalation events,
// keyed by issue severity. More severe issues escalate sooner.
var escalationDays = map[models.Severity]int{
	models.SeverityCritical: 2,
	models.SeverityHigh:     5,
	models.SeverityMedium:   10,
	models.SeverityLow:      15,
}

// maxProjectedIssues caps how many issues feed the timeline so the sequence
// stays finite and readable.
const maxProjectedIssues = 5

// Synthesize derives the escalation timeline from the issue set. The output
// is sorted by non-decreasing day and is fully deterministic: the same
// issues always produce the same events, with severity ties broken by
// issue ID.
func Synthesize(issues []models.Issue) []models.TimelineEvent {
	if len(issues) == 0 {
		return []models.TimelineEvent{{
			Day:      0,
			Event:    "Infrastructure deployment completed successfully with no issues detected.",
			Severity: models.EventSeverityInfo,
		}}
	}

	ordered := make([]models.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Severity.Rank() != ordered[j].Severity.Rank() {
			return ordered[i].Severity.Rank() > ordered[j].Severity.Rank()
		}
		return ordered[i].ID < ordered[j].ID
	})
	if len(ordered) > maxProjectedIssues {
		ordered = ordered[:maxProjectedIssues]
	}

	events := []models.TimelineEvent{{
		Day:      0,
		Event:    fmt.Sprintf("Initial analysis detected %d issue(s) in the configuration.", len(issues)),
		Severity: models.EventSeverityInfo,
	}}

	day := 0
	for _, issue := range ordered {
		day += escalationDays[issue.Severity]
		events = append(events, models.TimelineEvent{
			Day:      day,
			Event:    escalationText(issue),
			Severity: issue.Severity.TimelineSeverity(),
		})
	}
	return events
}

func escalationText(issue models.Issue) string {
	if issue.FutureImpact != "" {
		return issue.FutureImpact
	}
	return fmt.Sprintf("%s worsens in %s if left unresolved.", issue.Title, issue.Resource)
}
