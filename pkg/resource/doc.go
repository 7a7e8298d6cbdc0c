// Package resource implements the engine driving every resource type from
// its declarative API definition: rule-based authorization, lifecycle state
// checks, schema validation, section upserts, file attachments and change
// notifications all derive from the loaded definition rather than from
// per-type code.
//
// The engine persists documents through pkg/docstore, file payloads through
// pkg/filestore, and emits change notifications through pkg/events. Every
// operation takes the acting identity and fails closed when no rule permits
// the caller.
package resource
