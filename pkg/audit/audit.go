package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
)

// Collection is the internal store collection holding audit entries. It is
// not a resource collection and never passes through the engine's adapter.
const Collection = "audit_log"

// Entry is one recorded change.
type Entry struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Actor        string       `json:"actor,omitempty"`
	Operation    string       `json:"operation"`
	ResourceType string       `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	SectionName  string       `json:"sectionName,omitempty"`
	Diff         docstore.Doc `json:"diff,omitempty"`
}

// Log records notifications durably. It implements events.Sink.
type Log struct {
	store  docstore.Store
	logger *logrus.Entry
}

// NewLog creates an audit log backed by store.
func NewLog(store docstore.Store, logger *logrus.Entry) *Log {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Log{
		store:  store,
		logger: logger.WithField("component", "audit"),
	}
}

// Publish implements events.Sink by persisting the notification.
func (l *Log) Publish(ctx context.Context, n events.Notification) error {
	doc := docstore.Doc{
		docstore.FieldID: uuid.NewString(),
		"timestamp":      n.Timestamp,
		"actor":          n.Actor,
		"operation":      string(n.Operation),
		"resourceType":   n.ResourceType,
		"resourceId":     n.ResourceID,
	}
	if n.SectionName != "" {
		doc["sectionName"] = n.SectionName
	}
	if len(n.Diff) > 0 {
		doc["diff"] = n.Diff
	}

	if _, err := l.store.InsertOne(ctx, Collection, doc); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// QueryParams filter the audit trail. ResourceType is required so queries
// always stay bounded to one type.
type QueryParams struct {
	ResourceType string
	ResourceID   string
	Actor        string
	Limit        int
}

// Query returns matching entries, newest first.
func (l *Log) Query(ctx context.Context, params QueryParams) ([]Entry, error) {
	if params.ResourceType == "" {
		return nil, apierror.BadRequestf("resourceType is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	filter := docstore.Filter{"resourceType": params.ResourceType}
	if params.ResourceID != "" {
		filter["resourceId"] = params.ResourceID
	}
	if params.Actor != "" {
		filter["actor"] = params.Actor
	}

	docs, err := l.store.Find(ctx, Collection, filter, &docstore.FindOptions{
		Sort:  docstore.Sort{"timestamp": -1},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, fromDoc(doc))
	}
	return entries, nil
}

// EnsureIndexes creates the trail's query indexes. Best-effort at startup.
func (l *Log) EnsureIndexes(ctx context.Context) {
	err := l.store.CreateIndexes(ctx, Collection, []docstore.Index{
		{Key: map[string]int{"resourceType": 1, "resourceId": 1, "timestamp": -1}},
	})
	if err != nil {
		l.logger.WithError(err).Warn("failed to create audit indexes")
	}
}

func fromDoc(doc docstore.Doc) Entry {
	entry := Entry{
		ID:           stringField(doc, docstore.FieldID),
		Actor:        stringField(doc, "actor"),
		Operation:    stringField(doc, "operation"),
		ResourceType: stringField(doc, "resourceType"),
		ResourceID:   stringField(doc, "resourceId"),
		SectionName:  stringField(doc, "sectionName"),
	}
	switch v := doc["timestamp"].(type) {
	case time.Time:
		entry.Timestamp = v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			entry.Timestamp = t
		}
	}
	if diff, ok := doc["diff"].(map[string]any); ok {
		entry.Diff = diff
	}
	return entry
}

func stringField(doc docstore.Doc, key string) string {
	s, _ := doc[key].(string)
	return s
}
