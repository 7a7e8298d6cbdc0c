package apidef

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule is one element of an operation's `let` list: either a bare role name
// (unconditional allow) or a condition object. The zero value is invalid; a
// rule always carries a role in For.
type Rule struct {
	// For names the role this rule applies to.
	For string
	// If maps resource field names to expected values. A key equal to the
	// role name itself denotes an ownership check.
	If map[string]Expectation
	// Validate names a schema that must additionally be applied.
	Validate string
	// Set names a field to stamp with actor identity on create.
	Set string
	// AppendID names a field whose value should be appended with the created
	// resource id.
	AppendID string
}

// Unconditional reports whether the rule allows its role with no further
// checks or actions.
func (r Rule) Unconditional() bool {
	return len(r.If) == 0 && r.Validate == "" && r.Set == "" && r.AppendID == ""
}

type ruleObject struct {
	For      string                 `yaml:"for" json:"for"`
	If       map[string]Expectation `yaml:"if,omitempty" json:"if,omitempty"`
	Validate string                 `yaml:"validate,omitempty" json:"validate,omitempty"`
	Set      string                 `yaml:"set,omitempty" json:"set,omitempty"`
	AppendID string                 `yaml:"appendId,omitempty" json:"appendId,omitempty"`
}

// UnmarshalYAML decodes either a bare role name or a condition object.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var role string
		if err := node.Decode(&role); err != nil {
			return fmt.Errorf("failed to decode rule role: %w", err)
		}
		*r = Rule{For: role}
		return nil
	}
	var obj ruleObject
	if err := node.Decode(&obj); err != nil {
		return fmt.Errorf("failed to decode rule condition: %w", err)
	}
	*r = Rule{For: obj.For, If: obj.If, Validate: obj.Validate, Set: obj.Set, AppendID: obj.AppendID}
	return nil
}

// UnmarshalJSON decodes either a bare role name or a condition object.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var role string
	if err := json.Unmarshal(data, &role); err == nil {
		*r = Rule{For: role}
		return nil
	}
	var obj ruleObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to decode rule condition: %w", err)
	}
	*r = Rule{For: obj.For, If: obj.If, Validate: obj.Validate, Set: obj.Set, AppendID: obj.AppendID}
	return nil
}

// MarshalJSON encodes unconditional rules back to their compact string form.
func (r Rule) MarshalJSON() ([]byte, error) {
	if r.Unconditional() {
		return json.Marshal(r.For)
	}
	return json.Marshal(ruleObject{For: r.For, If: r.If, Validate: r.Validate, Set: r.Set, AppendID: r.AppendID})
}

// Expectation is the expected value side of an `if` predicate: a single
// literal, a list of literals (membership), or a boolean.
type Expectation struct {
	value any
}

// NewExpectation builds an Expectation for tests and programmatic definitions.
// value must be a string, bool, []string or []any of strings.
func NewExpectation(value any) Expectation {
	return Expectation{value: value}
}

// Values returns all expected literals as strings. Booleans render as
// "true"/"false".
func (e Expectation) Values() []string {
	switch v := e.value.(type) {
	case string:
		return []string{v}
	case bool:
		return []string{fmt.Sprintf("%t", v)}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

// IsList reports whether the expectation is a membership list.
func (e Expectation) IsList() bool {
	switch e.value.(type) {
	case []string, []any:
		return true
	}
	return false
}

// Literal returns the single expected literal. For lists it returns the empty
// string.
func (e Expectation) Literal() string {
	switch v := e.value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	}
	return ""
}

// Matches reports whether the given resource field value satisfies the
// expectation: equality for literals, membership for lists.
func (e Expectation) Matches(value any) bool {
	actual := fmt.Sprintf("%v", value)
	for _, expected := range e.Values() {
		if actual == expected {
			return true
		}
	}
	return false
}

// UnmarshalYAML decodes a scalar or a sequence of scalars.
func (e *Expectation) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("failed to decode expectation: %w", err)
	}
	return e.set(v)
}

// UnmarshalJSON decodes a scalar or an array of scalars.
func (e *Expectation) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to decode expectation: %w", err)
	}
	return e.set(v)
}

// MarshalJSON round-trips the underlying literal or list.
func (e Expectation) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.value)
}

func (e *Expectation) set(v any) error {
	switch v.(type) {
	case string, bool, []string:
		e.value = v
		return nil
	case []any:
		e.value = v
		return nil
	default:
		return fmt.Errorf("unsupported expectation type %T", v)
	}
}

// ValidateSpec is an operation's `validate` attribute: either a single schema
// name or a per-role schema map.
type ValidateSpec struct {
	Name   string
	ByRole map[string]string
}

// ForRole resolves the schema name for a role: the role-specific entry when
// present, otherwise the single name.
func (v ValidateSpec) ForRole(role string) string {
	if name, ok := v.ByRole[role]; ok {
		return name
	}
	return v.Name
}

// IsZero reports whether no schema is configured.
func (v ValidateSpec) IsZero() bool {
	return v.Name == "" && len(v.ByRole) == 0
}

// UnmarshalYAML decodes a schema name or a role→schema map.
func (v *ValidateSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&v.Name)
	}
	return node.Decode(&v.ByRole)
}

// UnmarshalJSON decodes a schema name or a role→schema map.
func (v *ValidateSpec) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &v.Name); err == nil {
		return nil
	}
	return json.Unmarshal(data, &v.ByRole)
}

// MarshalJSON round-trips the schema name or role map.
func (v ValidateSpec) MarshalJSON() ([]byte, error) {
	if len(v.ByRole) > 0 {
		return json.Marshal(v.ByRole)
	}
	return json.Marshal(v.Name)
}
