// Package rules implements the deterministic, offline rule engine. It is the
// analysis backend of last resort: Detect never fails, never touches the
// network, and returns whatever the individual detectors could find even when
// the input is malformed or binary garbage.
package rules

import (
	"fmt"

	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// Rule is one independent misconfiguration detector. Rules are stateless and
// run in registration order, but never see each other's output.
type Rule interface {
	ID() string
	Description() string
	Check(src *Source) []models.Issue
}

// Engine runs the registered detectors for a file type.
type Engine struct {
	terraform  []Rule
	kubernetes []Rule
	log        logger.Logger
}

// NewEngine creates an engine with the default rule sets.
func NewEngine() *Engine {
	return &Engine{
		terraform: []Rule{
			OpenIngressRule{},
			MissingTagsRule{},
			HardcodedSecretRule{},
			HardcodedAMIRule{},
			AutoscalingBoundsRule{},
		},
		kubernetes: []Rule{
			LatestImageRule{},
			MissingResourceLimitsRule{},
			PrivilegedContainerRule{},
			HostPathVolumeRule{},
			ReplicaDriftRule{},
		},
		log: logger.New("rules"),
	}
}

// Detect runs every detector for the file type against the content. A
// panicking detector is isolated so the remaining detectors still contribute;
// unknown file types yield an empty result.
func (e *Engine) Detect(content string, fileType models.FileType) []models.Issue {
	var ruleSet []Rule
	switch fileType {
	case models.FileTypeTerraform:
		ruleSet = e.terraform
	case models.FileTypeKubernetes:
		ruleSet = e.kubernetes
	default:
		return nil
	}

	src := NewSource(content, fileType)

	issues := make([]models.Issue, 0)
	for _, rule := range ruleSet {
		found := e.runRule(rule, src)
		for i := range found {
			// Stable per-rule IDs, unique within the run.
			found[i].ID = fmt.Sprintf("%s-%03d", rule.ID(), i+1)
			if found[i].FixSuggestion == "" {
				found[i].FixSuggestion = "Review and fix the configuration issue."
			}
		}
		issues = append(issues, found...)
	}
	return issues
}

// runRule isolates a single detector so one bad rule cannot blank the result.
func (e *Engine) runRule(rule Rule, src *Source) (issues []models.Issue) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("detector panicked, skipping",
				logger.String("rule", rule.ID()),
				logger.Any("panic", r))
			issues = nil
		}
	}()
	return rule.Check(src)
}
