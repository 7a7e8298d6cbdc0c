package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with deep-copy semantics. It backs development
// setups and tests, the way a filesystem backend sits beside the production
// one.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Doc
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: map[string][]Doc{}}
}

// Find implements Store.Find.
func (m *Memory) Find(ctx context.Context, collection string, filter Filter, opts *FindOptions) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var collation *Collation
	if opts != nil {
		collation = opts.Collation
	}

	var matched []Doc
	for _, doc := range m.collections[collection] {
		if matchesFilter(doc, filter, collation) {
			matched = append(matched, copyDoc(doc))
		}
	}

	if opts != nil && len(opts.Sort) > 0 {
		sortDocs(matched, opts.Sort, opts.Collation)
	}
	if opts != nil && opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	if opts != nil && len(opts.Projection) > 0 {
		for i, doc := range matched {
			matched[i] = project(doc, opts.Projection)
		}
	}
	return matched, nil
}

// FindOne implements Store.FindOne.
func (m *Memory) FindOne(ctx context.Context, collection string, filter Filter, opts *FindOptions) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var collation *Collation
	if opts != nil {
		collation = opts.Collation
	}

	for _, doc := range m.collections[collection] {
		if matchesFilter(doc, filter, collation) {
			result := copyDoc(doc)
			if opts != nil && len(opts.Projection) > 0 {
				result = project(result, opts.Projection)
			}
			return result, nil
		}
	}
	return nil, ErrNoDocuments
}

// InsertOne implements Store.InsertOne. A missing _id is generated.
func (m *Memory) InsertOne(ctx context.Context, collection string, doc Doc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyDoc(doc)
	id, ok := stored[FieldID].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		stored[FieldID] = id
	}
	m.collections[collection] = append(m.collections[collection], stored)
	return id, nil
}

// InsertMany implements Store.InsertMany.
func (m *Memory) InsertMany(ctx context.Context, collection string, docs []Doc) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := m.InsertOne(ctx, collection, doc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateOne implements Store.UpdateOne.
func (m *Memory) UpdateOne(ctx context.Context, collection string, filter Filter, update Doc) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.collections[collection] {
		if matchesFilter(doc, filter, nil) {
			for key, value := range update {
				if key == FieldID {
					continue
				}
				doc[key] = copyValue(value)
			}
			return copyDoc(doc), nil
		}
	}
	return nil, ErrNoDocuments
}

// UpdateMany implements Store.UpdateMany.
func (m *Memory) UpdateMany(ctx context.Context, collection string, filter Filter, update Doc) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, doc := range m.collections[collection] {
		if matchesFilter(doc, filter, nil) {
			for key, value := range update {
				if key == FieldID {
					continue
				}
				doc[key] = copyValue(value)
			}
			count++
		}
	}
	return count, nil
}

// DeleteOne implements Store.DeleteOne.
func (m *Memory) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	for i, doc := range docs {
		if matchesFilter(doc, filter, nil) {
			m.collections[collection] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return ErrNoDocuments
}

// DeleteMany implements Store.DeleteMany.
func (m *Memory) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []Doc
	var deleted int64
	for _, doc := range m.collections[collection] {
		if matchesFilter(doc, filter, nil) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	m.collections[collection] = kept
	return deleted, nil
}

// Count implements Store.Count.
func (m *Memory) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, doc := range m.collections[collection] {
		if matchesFilter(doc, filter, nil) {
			count++
		}
	}
	return count, nil
}

// Aggregate implements Store.Aggregate for the $match and $count stages.
func (m *Memory) Aggregate(ctx context.Context, collection string, pipeline []Doc) ([]Doc, error) {
	docs, err := m.Find(ctx, collection, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, stage := range pipeline {
		if match, ok := stage["$match"].(map[string]any); ok {
			var filtered []Doc
			for _, doc := range docs {
				if matchesFilter(doc, match, nil) {
					filtered = append(filtered, doc)
				}
			}
			docs = filtered
			continue
		}
		if field, ok := stage["$count"].(string); ok {
			return []Doc{{field: int64(len(docs))}}, nil
		}
		return nil, fmt.Errorf("unsupported aggregation stage in %v", stage)
	}
	return docs, nil
}

// CreateIndexes implements Store.CreateIndexes. The memory store keeps no
// indexes; the call validates input shape only.
func (m *Memory) CreateIndexes(ctx context.Context, collection string, indexes []Index) error {
	for _, index := range indexes {
		if len(index.Key) == 0 {
			return fmt.Errorf("index without key fields for collection %q", collection)
		}
	}
	return nil
}

// DropIndexes implements Store.DropIndexes.
func (m *Memory) DropIndexes(ctx context.Context, collection string) error {
	return nil
}

func matchesFilter(doc Doc, filter Filter, collation *Collation) bool {
	for field, expected := range filter {
		actual, present := doc[field]
		if ops, ok := expected.(map[string]any); ok && isOperatorDoc(ops) {
			if !present || !matchesOperators(actual, ops, collation) {
				return false
			}
			continue
		}
		if !present || !valuesEqual(actual, expected) {
			return false
		}
	}
	return true
}

func isOperatorDoc(ops map[string]any) bool {
	for key := range ops {
		if strings.HasPrefix(key, "$") {
			return true
		}
	}
	return false
}

// matchesOperators evaluates $gt/$lt/$in. The range operators honor the
// collation so that keyset filters agree with the sort order they page over.
func matchesOperators(actual any, ops map[string]any, collation *Collation) bool {
	for op, operand := range ops {
		switch op {
		case "$gt":
			if compareCollated(actual, operand, collation) <= 0 {
				return false
			}
		case "$lt":
			if compareCollated(actual, operand, collation) >= 0 {
				return false
			}
		case "$in":
			if !inList(actual, operand) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func inList(actual, operand any) bool {
	switch list := operand.(type) {
	case []any:
		for _, item := range list {
			if valuesEqual(actual, item) {
				return true
			}
		}
	case []string:
		for _, item := range list {
			if valuesEqual(actual, item) {
				return true
			}
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	return compareValues(a, b) == 0
}

// compareValues orders mixed scalar values: times chronologically, numbers
// numerically, everything else lexicographically on its string rendering.
func compareValues(a, b any) int {
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// compareCollated is compareValues under an optional strength-1 collation,
// which folds case for string operands.
func compareCollated(a, b any, collation *Collation) int {
	if collation != nil && collation.Strength == 1 {
		sa, aok := a.(string)
		sb, bok := b.(string)
		if aok && bok {
			return strings.Compare(strings.ToLower(sa), strings.ToLower(sb))
		}
	}
	return compareValues(a, b)
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sortDocs(docs []Doc, s Sort, collation *Collation) {
	var field string
	direction := 1
	for f, d := range s {
		field, direction = f, d
		break
	}
	sort.SliceStable(docs, func(i, j int) bool {
		cmp := compareCollated(docs[i][field], docs[j][field], collation)
		if direction < 0 {
			return cmp > 0
		}
		return cmp < 0
	})
}

func project(doc Doc, fields []string) Doc {
	out := Doc{}
	for _, field := range fields {
		if value, ok := doc[field]; ok {
			out[field] = value
		}
	}
	return out
}

func copyDoc(doc Doc) Doc {
	out := make(Doc, len(doc))
	for key, value := range doc {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case Doc:
		return copyDoc(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	case []Doc:
		out := make([]Doc, len(v))
		for i, item := range v {
			out[i] = copyDoc(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}
