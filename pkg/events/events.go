package events

import (
	"context"
	"reflect"
	"time"

	"github.com/dataroomhq/dataroom/pkg/docstore"
)

// Operation names the kind of change a notification describes.
type Operation string

const (
	OperationCreated      Operation = "created"
	OperationUpdated      Operation = "updated"
	OperationDeleted      Operation = "deleted"
	OperationFileUploaded Operation = "file_uploaded"
)

// Notification describes one change to one resource.
type Notification struct {
	Timestamp    time.Time `json:"timestamp"`
	Operation    Operation `json:"operation"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	// SectionName is set when the change was scoped to a single section.
	SectionName string `json:"sectionName,omitempty"`
	// Actor is the subject id of the caller that made the change.
	Actor string `json:"actor,omitempty"`
	// Diff holds the fields that changed, with file payload bytes removed.
	Diff docstore.Doc `json:"diff,omitempty"`
}

// Sink receives notifications. Publish must not block on slow consumers.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

// Discard is a Sink that drops all notifications.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(ctx context.Context, n Notification) error { return nil }

// Diff returns the fields of after that differ from before. Removed fields
// appear with a nil value.
func Diff(before, after docstore.Doc) docstore.Doc {
	diff := docstore.Doc{}
	for k, v := range after {
		if prev, ok := before[k]; !ok || !reflect.DeepEqual(prev, v) {
			diff[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			diff[k] = nil
		}
	}
	return diff
}

// StripPayloads removes raw byte payloads from a diff so notifications stay
// small. Nested maps and slices are walked; []byte values are dropped.
func StripPayloads(doc docstore.Doc) docstore.Doc {
	out := docstore.Doc{}
	for k, v := range doc {
		if stripped, keep := stripValue(v); keep {
			out[k] = stripped
		}
	}
	return out
}

func stripValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case []byte:
		return nil, false
	case docstore.Doc:
		out := docstore.Doc{}
		for k, item := range val {
			if stripped, keep := stripValue(item); keep {
				out[k] = stripped
			}
		}
		return out, true
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			if stripped, keep := stripValue(item); keep {
				out = append(out, stripped)
			}
		}
		return out, true
	default:
		return v, true
	}
}
