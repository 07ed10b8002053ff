package rules

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/infrapilot/infrapilot/pkg/models"
)

// openCIDR is the any-address block that turns an ingress rule into an
// internet-wide exposure.
const openCIDR = "0.0.0.0/0"

var (
	openIngressPattern = regexp.MustCompile(`cidr_blocks\s*=\s*\[?\s*["']?0\.0\.0\.0/0["']?`)
	sgResourcePattern  = regexp.MustCompile(`resource\s+["']aws_security_group["']\s+["']([^"']+)["']`)
)

// OpenIngressRule detects security groups that allow ingress from the entire
// internet. It scans the HCL syntax tree first and falls back to a raw text
// scan so broken input still gets flagged.
type OpenIngressRule struct{}

func (OpenIngressRule) ID() string { return "tf-unrestricted-sg" }

func (OpenIngressRule) Description() string {
	return "Security group allows ingress from 0.0.0.0/0"
}

func (OpenIngressRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	seenLines := make(map[int]bool)

	for _, res := range src.Resources {
		if res.Type != "aws_security_group" {
			continue
		}
		for _, ingress := range res.NestedBlocks("ingress") {
			line, ok := ingressOpenLine(ingress)
			if !ok {
				continue
			}
			seenLines[line] = true
			issues = append(issues, openIngressIssue(res.Address(), line))
		}
	}

	// Raw scan catches blocks the parser could not recover.
	for _, match := range openIngressPattern.FindAllStringIndex(src.Raw, -1) {
		line := src.LineOf(match[0])
		if seenLines[line] {
			continue
		}
		issues = append(issues, openIngressIssue(nearestSecurityGroup(src, line), line))
	}
	return issues
}

func ingressOpenLine(ingress *hclsyntax.Block) (int, bool) {
	attr, ok := ingress.Body.Attributes["cidr_blocks"]
	if !ok {
		return 0, false
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || !val.IsKnown() || val.IsNull() || !val.CanIterateElements() {
		return 0, false
	}
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() == cty.String && !elem.IsNull() && elem.AsString() == openCIDR {
			return attr.SrcRange.Start.Line, true
		}
	}
	return 0, false
}

func openIngressIssue(resource string, line int) models.Issue {
	return models.Issue{
		Title: "Unrestricted Security Group Rule",
		Description: fmt.Sprintf(
			"Security group allows ingress from %s (entire internet) at line %d. This exposes resources to potential attacks.",
			openCIDR, line),
		Severity:      models.SeverityHigh,
		Resource:      resource,
		FixSuggestion: "Restrict cidr_blocks to the specific address ranges that need access.",
	}
}

// nearestSecurityGroup looks backwards from a line for the enclosing security
// group declaration.
func nearestSecurityGroup(src *Source, line int) string {
	lines := splitLines(src.Raw)
	start := line - 20
	if start < 0 {
		start = 0
	}
	resource := "aws_security_group.unknown"
	for i := start; i < line && i < len(lines); i++ {
		if m := sgResourcePattern.FindStringSubmatch(lines[i]); m != nil {
			resource = "aws_security_group." + m[1]
		}
	}
	return resource
}

func splitLines(s string) []string {
	var lines []string
	begin := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[begin:i])
			begin = i + 1
		}
	}
	return append(lines, s[begin:])
}

// taggableTypes are the resource types expected to carry a tags block.
var taggableTypes = map[string]bool{
	"aws_instance":       true,
	"aws_security_group": true,
	"aws_s3_bucket":      true,
	"aws_lb":             true,
	"aws_ecs_service":    true,
}

// MissingTagsRule flags taggable resources declared without tags.
type MissingTagsRule struct{}

func (MissingTagsRule) ID() string { return "tf-missing-tags" }

func (MissingTagsRule) Description() string {
	return "Taggable resource is missing a tags block"
}

func (MissingTagsRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, res := range src.Resources {
		if !taggableTypes[res.Type] || res.HasAttr("tags") {
			continue
		}
		issues = append(issues, models.Issue{
			Title: "Missing Resource Tags",
			Description: fmt.Sprintf(
				"Resource %s is missing a tags block. Tags are essential for resource organization, cost allocation, and compliance.",
				res.Address()),
			Severity:      models.SeverityMedium,
			Resource:      res.Address(),
			FixSuggestion: "Add a tags block with at least Name, Environment and Owner.",
		})
	}
	return issues
}

// secretPatterns pair a detection regex with a human label.
var secretPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS Access Key ID"},
	{regexp.MustCompile(`aws_secret_access_key\s*=\s*["'][^"']+["']`), "AWS Secret Access Key"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*["']?[a-zA-Z0-9]{20,}["']?`), "API Key"},
	{regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']{8,}["']`), "Password"},
	{regexp.MustCompile(`(?i)secret[_-]?key\s*[:=]\s*["'][^"']{10,}["']`), "Secret Key"},
}

// HardcodedSecretRule scans the raw text for credential material. It runs on
// the raw view so secrets in unparseable files are still caught.
type HardcodedSecretRule struct{}

func (HardcodedSecretRule) ID() string { return "tf-hardcoded-secret" }

func (HardcodedSecretRule) Description() string {
	return "Credential material committed in configuration"
}

func (HardcodedSecretRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, pattern := range secretPatterns {
		for _, match := range pattern.re.FindAllStringIndex(src.Raw, -1) {
			line := src.LineOf(match[0])
			issues = append(issues, models.Issue{
				Title: fmt.Sprintf("Hardcoded %s Detected", pattern.label),
				Description: fmt.Sprintf(
					"Potential hardcoded %s found at line %d. Secrets should be stored in environment variables, secrets managers, or Terraform variables, never in code.",
					pattern.label, line),
				Severity:      models.SeverityCritical,
				Resource:      "terraform_config",
				FixSuggestion: "Move the secret into a secrets manager or a sensitive Terraform variable.",
			})
		}
	}
	return issues
}

// HardcodedAMIRule flags instances pinned to a literal AMI ID. A literal that
// evaluates statically is by definition not coming from a data source or
// variable.
type HardcodedAMIRule struct{}

func (HardcodedAMIRule) ID() string { return "tf-outdated-ami" }

func (HardcodedAMIRule) Description() string {
	return "Instance uses a hardcoded AMI ID"
}

var amiIDPattern = regexp.MustCompile(`^ami-[0-9a-f]{8,17}$`)

func (HardcodedAMIRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, res := range src.Resources {
		if res.Type != "aws_instance" {
			continue
		}
		ami, ok := res.AttrString("ami")
		if !ok || !amiIDPattern.MatchString(ami) {
			continue
		}
		issues = append(issues, models.Issue{
			Title: "Hardcoded AMI ID Detected",
			Description: fmt.Sprintf(
				"AMI %s is hardcoded in %s (line %d). Hardcoded AMI IDs become outdated and pose security risks.",
				ami, res.Address(), res.DeclLine()),
			Severity:      models.SeverityMedium,
			Resource:      res.Address(),
			FixSuggestion: "Use an aws_ami data source or a variable to resolve the latest AMI dynamically.",
		})
	}
	return issues
}

// AutoscalingBoundsRule flags autoscaling groups whose desired capacity sits
// on a boundary, a common sign that live capacity has drifted from intent.
type AutoscalingBoundsRule struct{}

func (AutoscalingBoundsRule) ID() string { return "tf-instance-count-drift" }

func (AutoscalingBoundsRule) Description() string {
	return "Autoscaling desired capacity pinned at min or max"
}

func (AutoscalingBoundsRule) Check(src *Source) []models.Issue {
	var issues []models.Issue
	for _, res := range src.Resources {
		if res.Type != "aws_autoscaling_group" {
			continue
		}
		min, okMin := res.AttrInt("min_size")
		max, okMax := res.AttrInt("max_size")
		desired, okDesired := res.AttrInt("desired_capacity")
		if !okMin || !okMax || !okDesired {
			continue
		}
		if desired != min && desired != max {
			continue
		}
		issues = append(issues, models.Issue{
			Title: "Potential Autoscaling Drift Risk",
			Description: fmt.Sprintf(
				"ASG %s has desired_capacity (%d) at boundary (min: %d, max: %d). This might indicate actual instances have drifted from desired state.",
				res.Name, desired, min, max),
			Severity:      models.SeverityLow,
			Resource:      res.Address(),
			FixSuggestion: "Verify live instance counts and adjust the capacity bounds to leave scaling headroom.",
		})
	}
	return issues
}
