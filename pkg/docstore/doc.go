// Package docstore provides the generic document store capability consumed by
// the dataroom engine, plus the guarded adapter the engine actually talks to.
//
// # Overview
//
// The Store interface models a schemaless document database: collections of
// JSON-like documents addressed by a string _id, filtered with literal
// equality or the $gt/$lt/$in operator forms. Two backends ship with the
// repository:
//
//   - Memory: an in-process store with deep-copy semantics, used for
//     development and tests
//   - Postgres: one JSONB-backed table per collection, traced with
//     OpenTelemetry spans
//
// # Adapter
//
// Engine code never uses a Store directly. The Adapter wraps a Store with the
// supported-collection whitelist (operating on an unknown collection is
// Forbidden), stamps createdAt/updatedAt server-side on every insert
// (overriding any client-supplied values), and implements collation-aware
// keyset pagination (Paginate) for cursor-based listing over a mutable
// backing store.
package docstore
