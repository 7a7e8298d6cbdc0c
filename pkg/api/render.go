package api

import (
	"time"

	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/validator"
)

// renderDoc prepares a document for JSON output: timestamps become strings,
// date-valued fields (midnight UTC) render as bare dates.
func renderDoc(doc docstore.Doc) docstore.Doc {
	if doc == nil {
		return nil
	}
	out := make(docstore.Doc, len(doc))
	for key, value := range doc {
		out[key] = renderValue(value)
	}
	return out
}

func renderValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return validator.RenderTime(v)
	case docstore.Doc:
		return map[string]interface{}(renderDoc(v))
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = renderValue(item)
		}
		return out
	default:
		return value
	}
}

// renderPage renders every item of a page.
func renderPage(page *docstore.Page) *docstore.Page {
	items := make([]docstore.Doc, len(page.Items))
	for i, item := range page.Items {
		items[i] = renderDoc(item)
	}
	return &docstore.Page{Items: items, Cursor: page.Cursor, HasMore: page.HasMore}
}
