package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/dataroomhq/dataroom/pkg/docstore")

// Postgres implements Store over one JSONB-backed table per collection.
// Documents serialize to JSON on write, so time values round-trip as RFC3339
// strings, which keep chronological order under JSONB comparison.
type Postgres struct {
	db     *sql.DB
	tables sync.Map // collection -> struct{}, tables already ensured
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func tableName(collection string) string {
	return "dataroom_" + collection
}

func (p *Postgres) ensureTable(ctx context.Context, collection string) error {
	if _, ok := p.tables.Load(collection); ok {
		return nil
	}
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc JSONB NOT NULL)`,
		pq.QuoteIdentifier(tableName(collection)),
	)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure collection table: %w", err)
	}
	p.tables.Store(collection, struct{}{})
	return nil
}

// buildWhere renders a Filter to a SQL condition over the doc column.
// Arguments are appended to args; the returned clause omits the WHERE keyword.
// A strength-1 collation folds case on $gt/$lt string comparisons, keeping
// keyset filters consistent with the LOWER(...) ordering buildOrder emits.
func buildWhere(filter Filter, args *[]any, collation *Collation) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}
	clauses := make([]string, 0, len(filter))
	for field, expected := range filter {
		if field == FieldID {
			*args = append(*args, fmt.Sprintf("%v", expected))
			clauses = append(clauses, fmt.Sprintf("id = $%d", len(*args)))
			continue
		}
		if ops, ok := expected.(map[string]any); ok && isOperatorDoc(ops) {
			for op, operand := range ops {
				switch op {
				case "$gt", "$lt":
					cmp := ">"
					if op == "$lt" {
						cmp = "<"
					}
					if text, ok := operand.(string); ok && collation != nil && collation.Strength == 1 {
						*args = append(*args, text)
						clauses = append(clauses, fmt.Sprintf("LOWER(doc->>%s) %s LOWER($%d)", quoteLiteral(field), cmp, len(*args)))
						continue
					}
					operandJSON, err := json.Marshal(operand)
					if err != nil {
						return "", fmt.Errorf("failed to encode operand: %w", err)
					}
					*args = append(*args, string(operandJSON))
					clauses = append(clauses, fmt.Sprintf("doc->%s %s $%d::jsonb", quoteLiteral(field), cmp, len(*args)))
				case "$in":
					values := renderList(operand)
					*args = append(*args, pq.Array(values))
					clauses = append(clauses, fmt.Sprintf("doc->>%s = ANY($%d)", quoteLiteral(field), len(*args)))
				default:
					return "", fmt.Errorf("unsupported filter operator %q", op)
				}
			}
			continue
		}
		expectedJSON, err := json.Marshal(expected)
		if err != nil {
			return "", fmt.Errorf("failed to encode filter value: %w", err)
		}
		*args = append(*args, string(expectedJSON))
		clauses = append(clauses, fmt.Sprintf("doc->%s = $%d::jsonb", quoteLiteral(field), len(*args)))
	}
	return strings.Join(clauses, " AND "), nil
}

func renderList(operand any) []string {
	switch list := operand.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func buildOrder(s Sort, collation *Collation) string {
	for field, direction := range s {
		dir := "ASC"
		if direction < 0 {
			dir = "DESC"
		}
		if collation != nil && collation.Strength == 1 {
			return fmt.Sprintf("ORDER BY LOWER(doc->>%s) %s", quoteLiteral(field), dir)
		}
		return fmt.Sprintf("ORDER BY doc->%s %s", quoteLiteral(field), dir)
	}
	return ""
}

func (p *Postgres) startSpan(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Postgres."+op,
		trace.WithAttributes(
			attribute.String("db.operation", op),
			attribute.String("db.collection", collection),
		),
	)
}

// Find implements Store.Find.
func (p *Postgres) Find(ctx context.Context, collection string, filter Filter, opts *FindOptions) ([]Doc, error) {
	ctx, span := p.startSpan(ctx, "Find", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return nil, recordError(span, err)
	}

	var collation *Collation
	if opts != nil {
		collation = opts.Collation
	}

	var args []any
	where, err := buildWhere(filter, &args, collation)
	if err != nil {
		return nil, recordError(span, err)
	}

	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s", pq.QuoteIdentifier(tableName(collection)), where)
	if opts != nil {
		if order := buildOrder(opts.Sort, opts.Collation); order != "" {
			query += " " + order
		}
		if opts.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		}
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to query collection: %w", err))
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, recordError(span, fmt.Errorf("failed to scan document: %w", err))
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, recordError(span, fmt.Errorf("failed to decode document: %w", err))
		}
		if opts != nil && len(opts.Projection) > 0 {
			doc = project(doc, opts.Projection)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, recordError(span, err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

// FindOne implements Store.FindOne.
func (p *Postgres) FindOne(ctx context.Context, collection string, filter Filter, opts *FindOptions) (Doc, error) {
	limited := &FindOptions{Limit: 1}
	if opts != nil {
		limited.Projection = opts.Projection
		limited.Sort = opts.Sort
		limited.Collation = opts.Collation
	}
	docs, err := p.Find(ctx, collection, filter, limited)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs[0], nil
}

// InsertOne implements Store.InsertOne.
func (p *Postgres) InsertOne(ctx context.Context, collection string, doc Doc) (string, error) {
	ctx, span := p.startSpan(ctx, "InsertOne", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return "", recordError(span, err)
	}

	stored := copyDoc(doc)
	id, ok := stored[FieldID].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		stored[FieldID] = id
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return "", recordError(span, fmt.Errorf("failed to encode document: %w", err))
	}

	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)", pq.QuoteIdentifier(tableName(collection)))
	if _, err := p.db.ExecContext(ctx, query, id, raw); err != nil {
		return "", recordError(span, fmt.Errorf("failed to insert document: %w", err))
	}
	span.SetStatus(codes.Ok, "")
	return id, nil
}

// InsertMany implements Store.InsertMany.
func (p *Postgres) InsertMany(ctx context.Context, collection string, docs []Doc) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := p.InsertOne(ctx, collection, doc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateOne implements Store.UpdateOne via a shallow JSONB merge, returning
// the post-update document.
func (p *Postgres) UpdateOne(ctx context.Context, collection string, filter Filter, update Doc) (Doc, error) {
	ctx, span := p.startSpan(ctx, "UpdateOne", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return nil, recordError(span, err)
	}

	patch := copyDoc(update)
	delete(patch, FieldID)
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to encode update: %w", err))
	}

	var args []any
	args = append(args, string(raw))
	where, err := buildWhere(filter, &args, nil)
	if err != nil {
		return nil, recordError(span, err)
	}

	table := pq.QuoteIdentifier(tableName(collection))
	query := fmt.Sprintf(
		"UPDATE %s SET doc = doc || $1::jsonb WHERE id IN (SELECT id FROM %s WHERE %s LIMIT 1) RETURNING doc",
		table, table, where,
	)

	var rawDoc []byte
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&rawDoc)
	if err == sql.ErrNoRows {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to update document: %w", err))
	}
	var doc Doc
	if err := json.Unmarshal(rawDoc, &doc); err != nil {
		return nil, recordError(span, fmt.Errorf("failed to decode document: %w", err))
	}
	span.SetStatus(codes.Ok, "")
	return doc, nil
}

// UpdateMany implements Store.UpdateMany.
func (p *Postgres) UpdateMany(ctx context.Context, collection string, filter Filter, update Doc) (int64, error) {
	ctx, span := p.startSpan(ctx, "UpdateMany", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, recordError(span, err)
	}

	patch := copyDoc(update)
	delete(patch, FieldID)
	raw, err := json.Marshal(patch)
	if err != nil {
		return 0, recordError(span, fmt.Errorf("failed to encode update: %w", err))
	}

	var args []any
	args = append(args, string(raw))
	where, err := buildWhere(filter, &args, nil)
	if err != nil {
		return 0, recordError(span, err)
	}

	query := fmt.Sprintf("UPDATE %s SET doc = doc || $1::jsonb WHERE %s", pq.QuoteIdentifier(tableName(collection)), where)
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, recordError(span, fmt.Errorf("failed to update documents: %w", err))
	}
	count, _ := result.RowsAffected()
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// DeleteOne implements Store.DeleteOne.
func (p *Postgres) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	ctx, span := p.startSpan(ctx, "DeleteOne", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return recordError(span, err)
	}

	var args []any
	where, err := buildWhere(filter, &args, nil)
	if err != nil {
		return recordError(span, err)
	}

	table := pq.QuoteIdentifier(tableName(collection))
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE %s LIMIT 1)", table, table, where)
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return recordError(span, fmt.Errorf("failed to delete document: %w", err))
	}
	if count, _ := result.RowsAffected(); count == 0 {
		return ErrNoDocuments
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteMany implements Store.DeleteMany.
func (p *Postgres) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	ctx, span := p.startSpan(ctx, "DeleteMany", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, recordError(span, err)
	}

	var args []any
	where, err := buildWhere(filter, &args, nil)
	if err != nil {
		return 0, recordError(span, err)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", pq.QuoteIdentifier(tableName(collection)), where)
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, recordError(span, fmt.Errorf("failed to delete documents: %w", err))
	}
	count, _ := result.RowsAffected()
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// Count implements Store.Count.
func (p *Postgres) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	ctx, span := p.startSpan(ctx, "Count", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, recordError(span, err)
	}

	var args []any
	where, err := buildWhere(filter, &args, nil)
	if err != nil {
		return 0, recordError(span, err)
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", pq.QuoteIdentifier(tableName(collection)), where)
	var count int64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, recordError(span, fmt.Errorf("failed to count documents: %w", err))
	}
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// Aggregate implements Store.Aggregate for the $match and $count stages.
func (p *Postgres) Aggregate(ctx context.Context, collection string, pipeline []Doc) ([]Doc, error) {
	match := Filter{}
	for _, stage := range pipeline {
		if m, ok := stage["$match"].(map[string]any); ok {
			for key, value := range m {
				match[key] = value
			}
			continue
		}
		if field, ok := stage["$count"].(string); ok {
			count, err := p.Count(ctx, collection, match)
			if err != nil {
				return nil, err
			}
			return []Doc{{field: count}}, nil
		}
		return nil, fmt.Errorf("unsupported aggregation stage in %v", stage)
	}
	return p.Find(ctx, collection, match, nil)
}

// CreateIndexes implements Store.CreateIndexes with expression indexes over
// the JSONB column.
func (p *Postgres) CreateIndexes(ctx context.Context, collection string, indexes []Index) error {
	ctx, span := p.startSpan(ctx, "CreateIndexes", collection)
	defer span.End()

	if err := p.ensureTable(ctx, collection); err != nil {
		return recordError(span, err)
	}

	for _, index := range indexes {
		for field := range index.Key {
			unique := ""
			if index.Unique {
				unique = "UNIQUE "
			}
			name := fmt.Sprintf("idx_%s_%s", tableName(collection), field)
			query := fmt.Sprintf(
				"CREATE %sINDEX IF NOT EXISTS %s ON %s ((doc->>%s))",
				unique, pq.QuoteIdentifier(name), pq.QuoteIdentifier(tableName(collection)), quoteLiteral(field),
			)
			if _, err := p.db.ExecContext(ctx, query); err != nil {
				return recordError(span, fmt.Errorf("failed to create index on %q: %w", field, err))
			}
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// DropIndexes implements Store.DropIndexes.
func (p *Postgres) DropIndexes(ctx context.Context, collection string) error {
	ctx, span := p.startSpan(ctx, "DropIndexes", collection)
	defer span.End()

	rows, err := p.db.QueryContext(ctx,
		"SELECT indexname FROM pg_indexes WHERE tablename = $1 AND indexname LIKE 'idx_%'",
		tableName(collection),
	)
	if err != nil {
		return recordError(span, fmt.Errorf("failed to list indexes: %w", err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return recordError(span, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return recordError(span, err)
	}

	for _, name := range names {
		if _, err := p.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+pq.QuoteIdentifier(name)); err != nil {
			return recordError(span, fmt.Errorf("failed to drop index %q: %w", name, err))
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
