package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/infrapilot/infrapilot/pkg/models"
)

var latestImagePattern = regexp.MustCompile(`(?i)image:\s*["']?([^"'\s:]+):latest["']?`)

// LatestImageRule detects containers pinned to the :latest tag. It works on
// the raw text so even manifests the YAML decoder rejects are covered.
type LatestImageRule struct{}

func (LatestImageRule) ID() string { return "k8s-latest-image" }

func (LatestImageRule) Description() string {
	return "Container image uses the :latest tag"
}

func (LatestImageRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, match := range latestImagePattern.FindAllStringSubmatchIndex(src.Raw, -1) {
		image := src.Raw[match[2]:match[3]]
		line := src.LineOf(match[0])
		issues = append(issues, models.Issue{
			Title: "Container Using :latest Image Tag",
			Description: fmt.Sprintf(
				"Container image %s:latest is using the :latest tag at line %d. This makes version tracking impossible and can lead to unexpected updates and drift.",
				image, line),
			Severity:      models.SeverityMedium,
			Resource:      nearestWorkload(src, line),
			FixSuggestion: fmt.Sprintf("Pin %s to an immutable version tag or digest.", image),
		})
	}
	return issues
}

// MissingResourceLimitsRule flags containers without resource constraints.
type MissingResourceLimitsRule struct{}

func (MissingResourceLimitsRule) ID() string { return "k8s-missing-resources" }

func (MissingResourceLimitsRule) Description() string {
	return "Container has no resource requests or limits"
}

func (MissingResourceLimitsRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, doc := range src.Documents {
		workload := docKind(doc) + "/" + docName(doc)
		for _, container := range docContainers(doc) {
			name, _ := container["name"].(string)
			if name == "" {
				name = "unknown"
			}
			resources, _ := container["resources"].(map[string]interface{})
			hasRequests := hasNonEmptyMap(resources, "requests")
			hasLimits := hasNonEmptyMap(resources, "limits")

			switch {
			case !hasRequests && !hasLimits:
				issues = append(issues, models.Issue{
					Title: "Missing Resource Requests and Limits",
					Description: fmt.Sprintf(
						"Container %s in %s has no resource requests or limits defined. This can cause unpredictable resource allocation and scheduling issues.",
						name, workload),
					Severity:      models.SeverityHigh,
					Resource:      workload,
					FixSuggestion: "Add resources.requests and resources.limits for cpu and memory.",
				})
			case !hasRequests:
				issues = append(issues, models.Issue{
					Title: "Missing Resource Requests",
					Description: fmt.Sprintf(
						"Container %s in %s has limits but no requests. Requests help with proper pod scheduling and resource allocation.",
						name, workload),
					Severity:      models.SeverityMedium,
					Resource:      workload,
					FixSuggestion: "Add resources.requests alongside the existing limits.",
				})
			}
		}
	}
	return issues
}

func hasNonEmptyMap(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	inner, _ := m[key].(map[string]interface{})
	return len(inner) > 0
}

var privilegedPattern = regexp.MustCompile(`(?i)privileged:\s*true`)

// PrivilegedContainerRule detects containers requesting privileged mode.
type PrivilegedContainerRule struct{}

func (PrivilegedContainerRule) ID() string { return "k8s-privileged-container" }

func (PrivilegedContainerRule) Description() string {
	return "Container runs in privileged mode"
}

func (PrivilegedContainerRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, match := range privilegedPattern.FindAllStringIndex(src.Raw, -1) {
		line := src.LineOf(match[0])
		issues = append(issues, models.Issue{
			Title: "Privileged Container Detected",
			Description: fmt.Sprintf(
				"A container in %s is running in privileged mode (line %d). Privileged containers have extensive host access and pose significant security risks.",
				nearestWorkload(src, line), line),
			Severity:      models.SeverityCritical,
			Resource:      nearestWorkload(src, line),
			FixSuggestion: "Remove privileged: true and grant only the specific capabilities the workload needs.",
		})
	}
	return issues
}

// HostPathVolumeRule detects hostPath volume mounts.
type HostPathVolumeRule struct{}

func (HostPathVolumeRule) ID() string { return "k8s-hostpath-volume" }

func (HostPathVolumeRule) Description() string {
	return "Workload mounts a hostPath volume"
}

func (HostPathVolumeRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, doc := range src.Documents {
		workload := docKind(doc) + "/" + docName(doc)
		for _, volume := range docVolumes(doc) {
			hostPath, ok := volume["hostPath"].(map[string]interface{})
			if !ok {
				continue
			}
			volumeName, _ := volume["name"].(string)
			if volumeName == "" {
				volumeName = "unknown"
			}
			path, _ := hostPath["path"].(string)
			if path == "" {
				path = "unknown"
			}
			issues = append(issues, models.Issue{
				Title: "HostPath Volume Detected",
				Description: fmt.Sprintf(
					"Volume %s in %s uses HostPath (path: %s). HostPath volumes mount host filesystem and can cause security issues and pod scheduling constraints, leading to potential drift.",
					volumeName, workload, path),
				Severity:      models.SeverityHigh,
				Resource:      workload,
				FixSuggestion: "Replace the hostPath volume with a PersistentVolumeClaim or projected volume.",
			})
		}
	}
	return issues
}

// ReplicaDriftRule flags replica counts that suggest drift: zero (scaled away
// from intent) or implausibly high values.
type ReplicaDriftRule struct{}

func (ReplicaDriftRule) ID() string { return "k8s-replica-drift" }

func (ReplicaDriftRule) Description() string {
	return "Replica count suggests drift from desired state"
}

const highReplicaThreshold = 50

func (ReplicaDriftRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, doc := range src.Documents {
		spec, _ := doc["spec"].(map[string]interface{})
		if spec == nil {
			continue
		}
		replicas, ok := asInt(spec["replicas"])
		if !ok {
			continue
		}
		workload := docKind(doc) + "/" + docName(doc)

		switch {
		case replicas == 0:
			issues = append(issues, models.Issue{
				Title: "Replicas Set to Zero",
				Description: fmt.Sprintf(
					"%s has replicas set to 0. This might indicate the resource has been scaled down or drifted from desired state.",
					workload),
				Severity:      models.SeverityLow,
				Resource:      workload,
				FixSuggestion: "Confirm the workload is intentionally scaled to zero, or restore the intended replica count.",
			})
		case replicas > highReplicaThreshold:
			issues = append(issues, models.Issue{
				Title: "Unusually High Replica Count",
				Description: fmt.Sprintf(
					"%s has %d replicas configured. This unusually high value might indicate configuration drift or a misconfiguration.",
					workload, replicas),
				Severity:      models.SeverityMedium,
				Resource:      workload,
				FixSuggestion: "Verify the replica count against expected load and use an autoscaler for bursty demand.",
			})
		}
	}
	return issues
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

var (
	kindLinePattern = regexp.MustCompile(`kind:\s*([A-Za-z]+)`)
	nameLinePattern = regexp.MustCompile(`name:\s*([A-Za-z0-9-]+)`)
)

// nearestWorkload scans backwards from a line for the enclosing kind and
// metadata name. Used by the raw-text detectors that have no document view.
func nearestWorkload(src *Source, line int) string {
	lines := strings.Split(src.Raw, "\n")
	start := line - 40
	if start < 0 {
		start = 0
	}
	kind, name := "Pod", "unknown"
	for i := start; i < line && i < len(lines); i++ {
		if m := kindLinePattern.FindStringSubmatch(lines[i]); m != nil {
			kind = m[1]
		}
		if m := nameLinePattern.FindStringSubmatch(lines[i]); m != nil && name == "unknown" {
			name = m[1]
		}
	}
	return kind + "/" + name
}
