package apidef

import (
	"fmt"
	"sort"
)

// SectionKind reports what a section holds.
type SectionKind int

const (
	// SectionPayload holds arbitrary JSON payload.
	SectionPayload SectionKind = iota
	// SectionDocument holds a single attached file.
	SectionDocument
	// SectionDocuments holds an ordered list of attached files.
	SectionDocuments
)

func (k SectionKind) String() string {
	switch k {
	case SectionDocument:
		return "document"
	case SectionDocuments:
		return "documents"
	default:
		return "payload"
	}
}

// DocumentSpec constrains a single-document section.
type DocumentSpec struct {
	MimeTypes []string `yaml:"mimeTypes" json:"mimeTypes"`
	MaxSize   int64    `yaml:"maxSize,omitempty" json:"maxSize,omitempty"`
}

// DocumentsSpec constrains a multi-document section.
type DocumentsSpec struct {
	MimeTypes []string `yaml:"mimeTypes" json:"mimeTypes"`
	MaxCount  int      `yaml:"maxCount,omitempty" json:"maxCount,omitempty"`
}

// Operation describes who may perform an operation and what happens on success.
// Let enumerates the permitted actor rules, Set declares fields forced to fixed
// values (e.g. stamping a state transition), Validate names the schema the
// payload must satisfy.
type Operation struct {
	Let      []Rule         `yaml:"let,omitempty" json:"let,omitempty"`
	Set      map[string]any `yaml:"set,omitempty" json:"set,omitempty"`
	Validate ValidateSpec   `yaml:"validate,omitempty" json:"validate,omitempty"`
}

// ListOperation extends an operation with the projection and query fields
// exposed by list endpoints.
type ListOperation struct {
	Let        []Rule   `yaml:"let,omitempty" json:"let,omitempty"`
	Projection []string `yaml:"projection,omitempty" json:"projection,omitempty"`
	Query      []string `yaml:"query,omitempty" json:"query,omitempty"`
}

// Section describes a named sub-document of a resource. A section is exactly
// one of plain-payload, single-document or multi-document, determined by the
// presence of Document/Documents.
type Section struct {
	Create    *Operation     `yaml:"create,omitempty" json:"create,omitempty"`
	Update    *Operation     `yaml:"update,omitempty" json:"update,omitempty"`
	Delete    *Operation     `yaml:"delete,omitempty" json:"delete,omitempty"`
	Document  *DocumentSpec  `yaml:"document,omitempty" json:"document,omitempty"`
	Documents *DocumentsSpec `yaml:"documents,omitempty" json:"documents,omitempty"`
	Versioned bool           `yaml:"versioned,omitempty" json:"versioned,omitempty"`
	Validate  string         `yaml:"validate,omitempty" json:"validate,omitempty"`
}

// Kind reports whether the section holds payload, one file or many files.
func (s *Section) Kind() SectionKind {
	switch {
	case s.Documents != nil:
		return SectionDocuments
	case s.Document != nil:
		return SectionDocument
	default:
		return SectionPayload
	}
}

// OperationFor returns the section's operation definition for the given
// operation name, or nil when the section does not support it.
func (s *Section) OperationFor(op string) *Operation {
	switch op {
	case "create":
		return s.Create
	case "update":
		return s.Update
	case "delete":
		return s.Delete
	default:
		return nil
	}
}

// Index describes a store index applied at startup (idempotent, best-effort).
type Index struct {
	Key    map[string]int `yaml:"key" json:"key"`
	Unique bool           `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// CoerceFields lists field paths requiring type coercion before validation and
// persistence.
type CoerceFields struct {
	Date []string `yaml:"date,omitempty" json:"date,omitempty"`
}

// Definition is the immutable declarative description of one resource type.
type Definition struct {
	// Name is the resource type name, e.g. "loan". It doubles as the backing
	// collection name and the key prefix for stored files.
	Name string `yaml:"name" json:"name"`

	// Scheme is the JSON-schema-like shape of the resource, used for response
	// shaping and load-time path checking.
	Scheme map[string]any `yaml:"scheme,omitempty" json:"scheme,omitempty"`

	// ResourceSchemeName keys the external validator for whole-resource
	// validation.
	ResourceSchemeName string `yaml:"resourceSchemeName" json:"resourceSchemeName"`

	// States is the ordered set of valid lifecycle states. Empty means the
	// resource is stateless.
	States []string `yaml:"states,omitempty" json:"states,omitempty"`

	Sections map[string]*Section `yaml:"sections,omitempty" json:"sections,omitempty"`

	Get    *Operation     `yaml:"get,omitempty" json:"get,omitempty"`
	Create *Operation     `yaml:"create,omitempty" json:"create,omitempty"`
	Update *Operation     `yaml:"update,omitempty" json:"update,omitempty"`
	Delete *Operation     `yaml:"delete,omitempty" json:"delete,omitempty"`
	List   *ListOperation `yaml:"list,omitempty" json:"list,omitempty"`

	Indexes      []Index       `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	CoerceFields *CoerceFields `yaml:"coerceFields,omitempty" json:"coerceFields,omitempty"`
}

// HasState reports whether state is one of the definition's valid states.
func (d *Definition) HasState(state string) bool {
	for _, s := range d.States {
		if s == state {
			return true
		}
	}
	return false
}

// Roles returns the sorted set of distinct roles referenced by the
// definition's rules, across resource and section operations.
func (d *Definition) Roles() []string {
	set := map[string]bool{}
	collect := func(let []Rule) {
		for _, rule := range let {
			if rule.For != "" {
				set[rule.For] = true
			}
		}
	}
	for _, op := range []*Operation{d.Get, d.Create, d.Update, d.Delete} {
		if op != nil {
			collect(op.Let)
		}
	}
	if d.List != nil {
		collect(d.List.Let)
	}
	for _, section := range d.Sections {
		for _, op := range []string{"create", "update", "delete"} {
			if opDef := section.OperationFor(op); opDef != nil {
				collect(opDef.Let)
			}
		}
	}
	roles := make([]string, 0, len(set))
	for role := range set {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Section returns the named section definition.
func (d *Definition) Section(name string) (*Section, bool) {
	s, ok := d.Sections[name]
	return s, ok
}

// SectionValidationScheme resolves the validation schema name for a section
// operation. Resolution order: operation validate by role, operation validate,
// section validate, then the "<section>.section" convention.
func (d *Definition) SectionValidationScheme(sectionName, op, role string) string {
	section, ok := d.Sections[sectionName]
	if !ok {
		return sectionName + ".section"
	}
	if opDef := section.OperationFor(op); opDef != nil {
		if name := opDef.Validate.ForRole(role); name != "" {
			return name
		}
	}
	if section.Validate != "" {
		return section.Validate
	}
	return sectionName + ".section"
}

// UpdateValidationScheme resolves the validation schema for a whole-resource
// update. Resolution order: operation validate by role, operation validate,
// then the resource scheme name.
func (d *Definition) UpdateValidationScheme(role string) string {
	if d.Update != nil {
		if name := d.Update.Validate.ForRole(role); name != "" {
			return name
		}
	}
	return d.ResourceSchemeName
}

// CheckValid verifies the definition's internal consistency. It is called once
// at load time so misconfiguration fails at startup, not mid-request.
func (d *Definition) CheckValid() error {
	if d.Name == "" {
		return fmt.Errorf("definition has no resource name")
	}
	if d.ResourceSchemeName == "" {
		return fmt.Errorf("definition %q has no resourceSchemeName", d.Name)
	}
	for name, section := range d.Sections {
		if section.Document != nil && section.Documents != nil {
			return fmt.Errorf("section %q declares both document and documents", name)
		}
	}
	ops := map[string][]Rule{}
	if d.Get != nil {
		ops["get"] = d.Get.Let
	}
	if d.Create != nil {
		ops["create"] = d.Create.Let
	}
	if d.Update != nil {
		ops["update"] = d.Update.Let
	}
	if d.Delete != nil {
		ops["delete"] = d.Delete.Let
	}
	if d.List != nil {
		ops["list"] = d.List.Let
	}
	for op, let := range ops {
		if err := d.checkRules(op, let); err != nil {
			return err
		}
	}
	for name, section := range d.Sections {
		for _, op := range []string{"create", "update", "delete"} {
			opDef := section.OperationFor(op)
			if opDef == nil {
				continue
			}
			if err := d.checkRules(fmt.Sprintf("sections.%s.%s", name, op), opDef.Let); err != nil {
				return err
			}
			if err := d.checkSetPaths(fmt.Sprintf("sections.%s.%s", name, op), opDef.Set); err != nil {
				return err
			}
		}
	}
	if d.Create != nil {
		if err := d.checkSetPaths("create", d.Create.Set); err != nil {
			return err
		}
	}
	return nil
}

func (d *Definition) checkRules(op string, let []Rule) error {
	for _, rule := range let {
		if rule.For == "" {
			return fmt.Errorf("definition %q: %s rule without a role", d.Name, op)
		}
		if expected, ok := rule.If["state"]; ok && len(d.States) > 0 {
			for _, state := range expected.Values() {
				if !d.HasState(state) {
					return fmt.Errorf("definition %q: %s rule references unknown state %q", d.Name, op, state)
				}
			}
		}
	}
	return nil
}

// checkSetPaths validates set-action field paths against the scheme when one
// is declared, so configuration cannot silently create nonexistent paths.
func (d *Definition) checkSetPaths(op string, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}
	props := schemeProperties(d.Scheme)
	for key := range set {
		path := ParsePath(key)
		if len(path) == 0 {
			return fmt.Errorf("definition %q: %s set action with empty path", d.Name, op)
		}
		if props != nil {
			if _, ok := props[path[0]]; !ok {
				return fmt.Errorf("definition %q: %s set action targets field %q not present in scheme", d.Name, op, path[0])
			}
		}
	}
	return nil
}

func schemeProperties(scheme map[string]any) map[string]any {
	if scheme == nil {
		return nil
	}
	props, _ := scheme["properties"].(map[string]any)
	return props
}
