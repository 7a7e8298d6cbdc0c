package resource

import (
	"context"
	"time"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// GetSection loads one section of a resource after a read-access check.
func (e *Engine) GetSection(ctx context.Context, resourceType, id, sectionName string, actor *identity.Actor) (out interface{}, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "get_section", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	if _, err = e.section(def, sectionName); err != nil {
		return nil, err
	}

	doc, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}
	if err = e.requireRead(def, actor, doc); err != nil {
		return nil, err
	}

	value, ok := doc[sectionName]
	if !ok || value == nil {
		return nil, apierror.NotFoundf("resource %q has no %q section", id, sectionName)
	}
	return value, nil
}

// UpsertSection writes a payload section wholesale. The caller names the
// intended operation: "create" requires the section to be absent, "update"
// requires it present, and the matching operation rules are checked against
// the resource's current state.
func (e *Engine) UpsertSection(ctx context.Context, resourceType, id, sectionName, op string, payload docstore.Doc, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "upsert_section", started, err) }()

	if op != "create" && op != "update" {
		return nil, apierror.BadRequestf("unknown section operation %q", op)
	}

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	sec, err := e.section(def, sectionName)
	if err != nil {
		return nil, err
	}
	if sec.Kind() != apidef.SectionPayload {
		return nil, apierror.BadRequestf(
			"section %q of %q holds file attachments, use the file upload endpoint", sectionName, def.Name)
	}

	doc, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}
	if err = e.requireRead(def, actor, doc); err != nil {
		return nil, err
	}
	if err = checkSectionPresence(doc, sectionName, id, op); err != nil {
		return nil, err
	}
	opDef := sec.OperationFor(op)
	if opDef == nil {
		return nil, apierror.Forbiddenf("section %q of %q does not support %s", sectionName, def.Name, op)
	}
	rule, err := authorize(opDef.Let, actor, doc)
	if err != nil {
		return nil, err
	}

	value := copyDoc(payload)
	if err = coerceSectionDates(value, sectionName, dateFields(def)); err != nil {
		return nil, err
	}

	scheme := rule.Rule.Validate
	explicit := scheme != ""
	if scheme == "" {
		scheme = def.SectionValidationScheme(sectionName, op, rule.Role)
		explicit = opDef.Validate.ForRole(rule.Role) != "" || sec.Validate != ""
	}
	if explicit || e.schemas.Has(scheme) {
		if err = e.schemas.Validate(scheme, value); err != nil {
			return nil, err
		}
	}

	e.stampSection(value, doc, sectionName, op, actor)

	update := docstore.Doc{sectionName: value}
	if len(opDef.Set) > 0 {
		approved, gated := value["isApproved"].(bool)
		if !gated || approved {
			for field, v := range opDef.Set {
				apidef.ParsePath(field).Set(update, v)
			}
		}
		if gated {
			// an approval payload records who proposed and when, whether or
			// not the set actions fired
			value["createdAt"] = e.now().UTC()
			value["createdByAuthId"] = actor.SubjectID
		}
	}

	merged := copyDoc(doc)
	for k, v := range update {
		merged[k] = v
	}
	if err = e.schemas.Validate(def.ResourceSchemeName, merged); err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateOne(ctx, def.Name, id, update)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.Notification{
		Operation:    events.OperationUpdated,
		ResourceType: def.Name,
		ResourceID:   id,
		SectionName:  sectionName,
		Actor:        actor.SubjectID,
		Diff:         events.Diff(doc, updated),
	})
	return updated, nil
}

// stampSection records authorship on the section value. Creation stamps are
// preserved across updates.
func (e *Engine) stampSection(value docstore.Doc, doc docstore.Doc, sectionName, op string, actor *identity.Actor) {
	if op == "create" {
		value["createdAt"] = e.now().UTC()
		value["createdByAuthId"] = actor.SubjectID
		return
	}
	if existing, ok := doc[sectionName].(map[string]interface{}); ok {
		if v, ok := existing["createdAt"]; ok {
			value["createdAt"] = v
		}
		if v, ok := existing["createdByAuthId"]; ok {
			value["createdByAuthId"] = v
		}
	}
	value["updatedAt"] = e.now().UTC()
	value["updatedByAuthId"] = actor.SubjectID
}

// checkSectionPresence enforces the create/update presence invariant: a
// create must not overwrite an existing section and an update must have one
// to write over.
func checkSectionPresence(doc docstore.Doc, sectionName, id, op string) error {
	existing, ok := doc[sectionName]
	present := ok && existing != nil
	if value, isList := existing.([]interface{}); isList {
		present = len(value) > 0
	}
	if op == "create" && present {
		return apierror.BadRequestf("section %q is already present on resource %q", sectionName, id)
	}
	if op == "update" && !present {
		return apierror.BadRequestf("section %q is not yet present on resource %q", sectionName, id)
	}
	return nil
}

// DeleteSection clears a section and, unless the section is versioned,
// removes its stored files.
func (e *Engine) DeleteSection(ctx context.Context, resourceType, id, sectionName string, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "delete_section", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	sec, err := e.section(def, sectionName)
	if err != nil {
		return nil, err
	}

	doc, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}
	if err = e.requireRead(def, actor, doc); err != nil {
		return nil, err
	}
	if existing, ok := doc[sectionName]; !ok || existing == nil {
		return nil, apierror.NotFoundf("resource %q has no %q section", id, sectionName)
	}
	if sec.Delete == nil {
		return nil, apierror.Forbiddenf("section %q of %q does not support delete", sectionName, def.Name)
	}
	if _, err = authorize(sec.Delete.Let, actor, doc); err != nil {
		return nil, err
	}

	update := docstore.Doc{sectionName: nil}
	for field, v := range sec.Delete.Set {
		apidef.ParsePath(field).Set(update, v)
	}

	merged := copyDoc(doc)
	for k, v := range update {
		merged[k] = v
	}
	if err = e.schemas.Validate(def.ResourceSchemeName, merged); err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateOne(ctx, def.Name, id, update)
	if err != nil {
		return nil, err
	}

	// versioned sections keep their stored files for audit history
	if !sec.Versioned {
		e.deleteStoredFiles(ctx, def.Name, id, sectionName)
	}

	e.publish(ctx, events.Notification{
		Operation:    events.OperationUpdated,
		ResourceType: def.Name,
		ResourceID:   id,
		SectionName:  sectionName,
		Actor:        actor.SubjectID,
		Diff:         events.Diff(doc, updated),
	})
	return updated, nil
}
