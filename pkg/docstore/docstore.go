package docstore

import (
	"context"
	"errors"
	"time"
)

// Doc is a schemaless document. The _id field holds the document identity.
type Doc = map[string]any

// Filter selects documents. A value is either a literal (equality) or an
// operator document using $gt, $lt or $in.
type Filter = map[string]any

// Sort maps field names to direction: 1 ascending, -1 descending.
type Sort map[string]int

// Collation tunes string comparison for find and sort. Strength 1 compares
// base characters only (case-insensitive).
type Collation struct {
	Locale   string
	Strength int
}

// FindOptions bundle the optional knobs of a find call.
type FindOptions struct {
	Projection []string
	Sort       Sort
	Limit      int
	Collation  *Collation
}

// Index describes a secondary index over document fields.
type Index struct {
	Key    map[string]int
	Unique bool
}

// ErrNoDocuments is returned by FindOne when no document matches.
var ErrNoDocuments = errors.New("no documents in result")

// Store is the document store capability. Implementations must treat documents
// as opaque JSON shapes and must not retain references to arguments.
type Store interface {
	Find(ctx context.Context, collection string, filter Filter, opts *FindOptions) ([]Doc, error)
	FindOne(ctx context.Context, collection string, filter Filter, opts *FindOptions) (Doc, error)
	InsertOne(ctx context.Context, collection string, doc Doc) (string, error)
	InsertMany(ctx context.Context, collection string, docs []Doc) ([]string, error)
	// UpdateOne applies update as a top-level field set to the first matching
	// document and returns the post-update document.
	UpdateOne(ctx context.Context, collection string, filter Filter, update Doc) (Doc, error)
	UpdateMany(ctx context.Context, collection string, filter Filter, update Doc) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) error
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []Doc) ([]Doc, error)
	CreateIndexes(ctx context.Context, collection string, indexes []Index) error
	DropIndexes(ctx context.Context, collection string) error
}

// FieldID is the document identity field.
const FieldID = "_id"

// Engine-stamped bookkeeping fields, never client-supplied.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// ByID builds an identity filter.
func ByID(id string) Filter {
	return Filter{FieldID: id}
}

// ToISO renders a value for cursor echoing: time values become ISO-8601
// strings, everything else passes through.
func ToISO(value any) any {
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return value
}
