// Package apidef models the declarative per-resource API definition that
// drives the dataroom engine.
//
// A Definition describes one resource type: its JSON schema, lifecycle states,
// named sections, store indexes, and for every operation the rules saying
// which role may perform it and under which resource conditions. Definitions
// are data, not code: they load from YAML files at startup and the engine
// interprets them at runtime, so adding a resource type never requires a new
// code path.
//
// The rule vocabulary is a closed set of variants rather than free-form
// reflection:
//
//   - a bare role name grants the operation unconditionally to that role
//   - a condition object ({for, if, validate, set, appendId}) grants it
//     subject to field predicates on the resource, or signals that a specific
//     validation schema or field stamp must be applied
//
// Field paths appearing in `set` actions are parsed and checked against the
// resource scheme when the definition loads, so a typo in configuration fails
// at startup instead of silently writing a nonexistent path at runtime.
package apidef
