// Package filestore stores file attachment payloads under content-derived
// keys. Two backends are provided: a local filesystem store for development
// and an S3-compatible store for production (AWS S3 or MinIO).
//
// File identity is content-addressed: the same bytes always produce the same
// file id regardless of filename, so re-uploading an identical file is a
// no-op at the storage layer.
package filestore
