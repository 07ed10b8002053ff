package rules

import (
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/infrapilot/infrapilot/pkg/models"
)

// Source is the parsed view of one piece of infrastructure text, shared by
// every detector in a run. Parsing is tolerant: content that does not parse
// simply yields an empty structural view while the raw text stays available
// for pattern-based detectors.
type Source struct {
	Raw      string
	FileType models.FileType

	// Terraform structural view; empty when HCL parsing produced nothing.
	Resources []*TerraformResource

	// Kubernetes structural view; one entry per parseable YAML document.
	Documents []map[string]interface{}
}

// NewSource parses content according to the file type. It never fails.
func NewSource(content string, fileType models.FileType) *Source {
	src := &Source{Raw: content, FileType: fileType}
	switch fileType {
	case models.FileTypeTerraform:
		src.Resources = parseTerraform(content)
	case models.FileTypeKubernetes:
		src.Documents = parseKubernetes(content)
	}
	return src
}

// LineOf returns the 1-based line number of a byte offset into the raw text.
func (s *Source) LineOf(offset int) int {
	if offset > len(s.Raw) {
		offset = len(s.Raw)
	}
	return strings.Count(s.Raw[:offset], "\n") + 1
}

// TerraformResource is one resource block from the HCL syntax tree.
type TerraformResource struct {
	Type  string
	Name  string
	block *hclsyntax.Block
}

// Address returns the terraform resource address, e.g. aws_instance.web.
func (r *TerraformResource) Address() string {
	return r.Type + "." + r.Name
}

// DeclLine returns the line the resource block starts on.
func (r *TerraformResource) DeclLine() int {
	return r.block.DefRange().Start.Line
}

// HasAttr reports whether the resource body sets the named attribute.
func (r *TerraformResource) HasAttr(name string) bool {
	_, ok := r.block.Body.Attributes[name]
	return ok
}

// AttrValue evaluates the named attribute without a context. Only statically
// known values resolve; references and function calls return false.
func (r *TerraformResource) AttrValue(name string) (cty.Value, bool) {
	attr, ok := r.block.Body.Attributes[name]
	if !ok {
		return cty.NilVal, false
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || val.IsNull() || !val.IsKnown() {
		return cty.NilVal, false
	}
	return val, true
}

// AttrString returns the named attribute as a string literal.
func (r *TerraformResource) AttrString(name string) (string, bool) {
	val, ok := r.AttrValue(name)
	if !ok || val.Type() != cty.String {
		return "", false
	}
	return val.AsString(), true
}

// AttrInt returns the named attribute as an integer literal.
func (r *TerraformResource) AttrInt(name string) (int64, bool) {
	val, ok := r.AttrValue(name)
	if !ok || val.Type() != cty.Number {
		return 0, false
	}
	n, _ := val.AsBigFloat().Int64()
	return n, true
}

// NestedBlocks returns the nested blocks of the given type, e.g. ingress.
func (r *TerraformResource) NestedBlocks(blockType string) []*hclsyntax.Block {
	var out []*hclsyntax.Block
	for _, b := range r.block.Body.Blocks {
		if b.Type == blockType {
			out = append(out, b)
		}
	}
	return out
}

// parseTerraform extracts resource blocks from HCL source. Parse diagnostics
// are ignored; a partial syntax tree still yields whatever blocks survived.
func parseTerraform(content string) []*TerraformResource {
	parser := hclparse.NewParser()
	file, _ := parser.ParseHCL([]byte(content), "input.tf")
	if file == nil {
		return nil
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil
	}

	var resources []*TerraformResource
	for _, block := range body.Blocks {
		if block.Type != "resource" || len(block.Labels) != 2 {
			continue
		}
		resources = append(resources, &TerraformResource{
			Type:  block.Labels[0],
			Name:  block.Labels[1],
			block: block,
		})
	}
	return resources
}

// parseKubernetes decodes multi-document YAML. Documents that fail to decode
// are skipped; scalar documents are ignored.
func parseKubernetes(content string) []map[string]interface{} {
	var docs []map[string]interface{}
	decoder := yaml.NewDecoder(strings.NewReader(content))
	for {
		var doc map[string]interface{}
		if err := decoder.Decode(&doc); err != nil {
			// yaml.Decoder stops the stream on the first error; there
			// is no safe way to resume past a broken document.
			break
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

// Kubernetes document helpers shared by the detectors.

func docKind(doc map[string]interface{}) string {
	kind, _ := doc["kind"].(string)
	return kind
}

func docName(doc map[string]interface{}) string {
	meta, _ := doc["metadata"].(map[string]interface{})
	if meta == nil {
		return "unknown"
	}
	name, _ := meta["name"].(string)
	if name == "" {
		return "unknown"
	}
	return name
}

// podSpec returns the pod spec of a workload document: the document's own
// spec for Pods, the template spec for controllers.
func podSpec(doc map[string]interface{}) map[string]interface{} {
	spec, _ := doc["spec"].(map[string]interface{})
	if spec == nil {
		return nil
	}
	switch docKind(doc) {
	case "Pod":
		return spec
	case "Deployment", "StatefulSet", "DaemonSet", "ReplicaSet", "Job":
		template, _ := spec["template"].(map[string]interface{})
		if template == nil {
			return nil
		}
		podSpec, _ := template["spec"].(map[string]interface{})
		return podSpec
	}
	return nil
}

func docContainers(doc map[string]interface{}) []map[string]interface{} {
	spec := podSpec(doc)
	if spec == nil {
		return nil
	}
	raw, _ := spec["containers"].([]interface{})
	var containers []map[string]interface{}
	for _, c := range raw {
		if m, ok := c.(map[string]interface{}); ok {
			containers = append(containers, m)
		}
	}
	return containers
}

func docVolumes(doc map[string]interface{}) []map[string]interface{} {
	spec := podSpec(doc)
	if spec == nil {
		return nil
	}
	raw, _ := spec["volumes"].([]interface{})
	var volumes []map[string]interface{}
	for _, v := range raw {
		if m, ok := v.(map[string]interface{}); ok {
			volumes = append(volumes, m)
		}
	}
	return volumes
}
