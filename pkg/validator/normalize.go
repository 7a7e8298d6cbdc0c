package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dataroomhq/dataroom/pkg/docstore"
)

// Normalize prepares a document for schema validation: the internal _id
// field is stripped, timestamps are rendered as strings, and the result is
// round-tripped through JSON so numbers and nested maps take their canonical
// decoded forms.
func Normalize(doc docstore.Doc) (interface{}, error) {
	prepared := renderValue(doc)
	if m, ok := prepared.(map[string]interface{}); ok {
		delete(m, docstore.FieldID)
	}

	data, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out interface{}
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

// RenderTime renders a timestamp for validation and API output. Timestamps
// at exactly midnight UTC are treated as bare dates.
func RenderTime(t time.Time) string {
	utc := t.UTC()
	if utc.Hour() == 0 && utc.Minute() == 0 && utc.Second() == 0 && utc.Nanosecond() == 0 {
		return utc.Format("2006-01-02")
	}
	return utc.Format(time.RFC3339Nano)
}

func renderValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return RenderTime(val)
	case docstore.Doc:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = renderValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = renderValue(item)
		}
		return out
	default:
		return v
	}
}
