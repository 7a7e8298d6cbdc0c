// Package validator checks resource and section payloads against named JSON
// schemas. Schemas live as .json files in a directory and are compiled
// lazily, with compiled schemas held in an LRU cache.
//
// Before validation, documents are normalized into plain JSON values:
// timestamps render as RFC 3339 strings, and timestamps falling exactly on
// midnight UTC render as bare dates (YYYY-MM-DD) to match date-typed schema
// fields.
package validator
