package resource

import (
	"time"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
}

// coerceDates parses the configured date fields of doc from strings into
// timestamps. Bare dates land on midnight UTC so they render back as dates.
// Fields that are absent or already timestamps pass through; an unparseable
// string is a BadRequest.
func coerceDates(doc docstore.Doc, fields []string) error {
	for _, field := range fields {
		path := apidef.ParsePath(field)
		raw, ok := path.Get(doc)
		if !ok || raw == nil {
			continue
		}
		if _, isTime := raw.(time.Time); isTime {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return apierror.BadRequestf("field %q must be a date string", field)
		}
		parsed, err := parseDate(s)
		if err != nil {
			return apierror.BadRequestf("field %q holds invalid date %q", field, s)
		}
		path.Set(doc, parsed)
	}
	return nil
}

// coerceSectionDates applies the date fields scoped to one section, with the
// section prefix stripped.
func coerceSectionDates(value docstore.Doc, sectionName string, fields []string) error {
	for _, field := range fields {
		path := apidef.ParsePath(field)
		if len(path) < 2 || path[0] != sectionName {
			continue
		}
		scoped := path.TrimPrefix(sectionName)
		raw, ok := scoped.Get(value)
		if !ok || raw == nil {
			continue
		}
		if _, isTime := raw.(time.Time); isTime {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return apierror.BadRequestf("field %q must be a date string", field)
		}
		parsed, err := parseDate(s)
		if err != nil {
			return apierror.BadRequestf("field %q holds invalid date %q", field, s)
		}
		scoped.Set(value, parsed)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func dateFields(def *apidef.Definition) []string {
	if def.CoerceFields == nil {
		return nil
	}
	return def.CoerceFields.Date
}
