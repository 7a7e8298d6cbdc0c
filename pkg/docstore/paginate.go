package docstore

import "context"

const (
	// DefaultPageLimit applies when a cursor carries no limit.
	DefaultPageLimit = 20
	// MaxPageLimit caps the page size.
	MaxPageLimit = 10000
)

// Cursor bookmarks a position in a result set: the paginated field, the last
// returned value of that field, and the page size. Cursors are constructed per
// request and never persisted.
type Cursor struct {
	Field string `json:"field"`
	From  any    `json:"from,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Page is one page of a keyset traversal. Cursor, when non-nil, is a valid
// input to the next Paginate call with the same field and limit.
type Page struct {
	Items   []Doc   `json:"items"`
	Cursor  *Cursor `json:"cursor"`
	HasMore bool    `json:"hasMore"`
}

// Paginate runs one step of keyset pagination over the collection.
//
// The sort direction and comparison operator depend on the field: "name" (the
// one string-typed cursor field) paginates forward, ascending with $gt under a
// case-insensitive English collation; every other field is assumed
// numeric/date and paginates backward, descending with $lt. The query fetches
// limit+1 rows to detect hasMore without a separate count.
func (a *Adapter) Paginate(ctx context.Context, collection string, filter Filter, cursor Cursor, projection []string) (*Page, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}

	limit := cursor.Limit
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	cursor.Limit = limit

	fieldIsString := cursor.Field == "name"
	fromOperator := "$lt"
	direction := -1
	var collation *Collation
	if fieldIsString {
		fromOperator = "$gt"
		direction = 1
		collation = &Collation{Locale: "en", Strength: 1}
	}

	find := Filter{}
	for key, value := range filter {
		find[key] = value
	}
	if cursor.From != nil {
		find[cursor.Field] = map[string]any{fromOperator: cursor.From}
	}

	items, err := a.store.Find(ctx, collection, find, &FindOptions{
		Projection: projection,
		Sort:       Sort{cursor.Field: direction},
		Limit:      limit + 1,
		Collation:  collation,
	})
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return &Page{Items: []Doc{}, HasMore: false, Cursor: nil}, nil
	}

	originalCount := len(items)
	if len(items) > limit {
		items = items[:limit]
	}
	lastVal := ToISO(items[len(items)-1][cursor.Field])

	next := cursor
	next.From = lastVal
	return &Page{
		Items:   items,
		Cursor:  &next,
		HasMore: originalCount > limit,
	}, nil
}
