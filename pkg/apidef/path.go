package apidef

import "strings"

// Path is an ordered list of field segments addressing a nested value inside a
// resource document. Paths come from configuration (`set` actions, coerce
// fields) and are parsed once at definition load time.
type Path []string

// ParsePath splits a dotted field path into segments. Empty segments are
// dropped.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	path := make(Path, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			path = append(path, p)
		}
	}
	return path
}

// String renders the path back to dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// TrimPrefix returns the path with the leading segment removed when it equals
// prefix, otherwise the path unchanged. Used to strip a section name from a
// coerce-field path when operating on the section value alone.
func (p Path) TrimPrefix(prefix string) Path {
	if len(p) > 0 && p[0] == prefix {
		return p[1:]
	}
	return p
}

// Get resolves the path inside a nested map document. The second return is
// false when any intermediate segment is missing or not a map.
func (p Path) Get(doc map[string]any) (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	current := doc
	for i, seg := range p {
		value, ok := current[seg]
		if !ok {
			return nil, false
		}
		if i == len(p)-1 {
			return value, true
		}
		next, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Set writes value at the path inside doc, creating intermediate maps as
// needed. Intermediate non-map values are replaced.
func (p Path) Set(doc map[string]any, value any) {
	if len(p) == 0 {
		return
	}
	current := doc
	for _, seg := range p[:len(p)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[seg] = next
		}
		current = next
	}
	current[p[len(p)-1]] = value
}

// Delete removes the value at the path when present.
func (p Path) Delete(doc map[string]any) {
	if len(p) == 0 {
		return
	}
	current := doc
	for _, seg := range p[:len(p)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, p[len(p)-1])
}
