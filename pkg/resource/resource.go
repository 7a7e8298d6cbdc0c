package resource

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/access"
	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

func authorize(let []apidef.Rule, actor *identity.Actor, doc docstore.Doc) (*access.AppliedRule, error) {
	return access.Authorize(let, actor, doc)
}

// Create authorizes, validates and stores a new resource. The caller's rule
// may stamp actor identity into the document and append the new id onto the
// caller's backing record.
func (e *Engine) Create(ctx context.Context, resourceType string, payload docstore.Doc, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "create", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	if def.Create == nil {
		return nil, apierror.Forbiddenf("create is not permitted on %q", def.Name)
	}

	doc := stripProtected(payload, def.Name)
	rule, err := authorize(def.Create.Let, actor, doc)
	if err != nil {
		return nil, err
	}

	if err = coerceDates(doc, dateFields(def)); err != nil {
		return nil, err
	}
	for field, value := range def.Create.Set {
		apidef.ParsePath(field).Set(doc, value)
	}
	if rule.Rule.Set != "" {
		apidef.ParsePath(rule.Rule.Set).Set(doc, actor.SubjectID)
	}
	doc[businessIDField(def.Name)] = e.ids.NewID(def.Name)
	doc[docstore.FieldID] = uuid.NewString()

	scheme := rule.Rule.Validate
	if scheme == "" {
		scheme = def.Create.Validate.ForRole(rule.Role)
	}
	if scheme == "" {
		scheme = def.ResourceSchemeName
	}
	if err = e.schemas.Validate(scheme, doc); err != nil {
		return nil, err
	}

	id, err := e.store.Insert(ctx, def.Name, doc)
	if err != nil {
		return nil, err
	}
	created, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}

	if rule.Rule.AppendID != "" {
		e.appendToOwnerRecord(ctx, rule, id)
	}

	e.publish(ctx, events.Notification{
		Operation:    events.OperationCreated,
		ResourceType: def.Name,
		ResourceID:   id,
		Actor:        actor.SubjectID,
		Diff:         created,
	})
	return created, nil
}

// appendToOwnerRecord appends the created resource id onto the caller's
// backing record. Best-effort: the resource is already stored, so a failure
// here is logged rather than surfaced.
func (e *Engine) appendToOwnerRecord(ctx context.Context, rule *access.AppliedRule, id string) {
	ownerID, _ := rule.UserData[docstore.FieldID].(string)
	if ownerID == "" {
		return
	}
	var ids []interface{}
	switch existing := rule.UserData[rule.Rule.AppendID].(type) {
	case []interface{}:
		ids = append(ids, existing...)
	case []string:
		for _, v := range existing {
			ids = append(ids, v)
		}
	}
	ids = append(ids, id)

	if _, err := e.store.UpdateOne(ctx, rule.Role, ownerID, docstore.Doc{rule.Rule.AppendID: ids}); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"collection": rule.Role,
			"owner_id":   ownerID,
			"field":      rule.Rule.AppendID,
		}).Warn("failed to append resource id to owner record")
	}
}

// Get loads a resource and checks the caller's read access against it.
func (e *Engine) Get(ctx context.Context, resourceType, id string, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "get", started, err) }()

	def, err := e.definition(resourceType)
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
	return doc, nil
}

// ListParams carries the client's query and pagination inputs.
type ListParams struct {
	// Query filters on the definition's whitelisted query fields.
	Query map[string]string
	// Cursor bookmarks the traversal. An empty field defaults to createdAt.
	Cursor docstore.Cursor
}

// List pages through the resources visible to the caller. The caller's rule
// narrows the query (ownership becomes an id filter) and the definition's
// projection bounds the returned fields.
func (e *Engine) List(ctx context.Context, resourceType string, params ListParams, actor *identity.Actor) (page *docstore.Page, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "list", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	if def.List == nil {
		return nil, apierror.Forbiddenf("list is not permitted on %q", def.Name)
	}

	filter := docstore.Filter{}
	for field, value := range params.Query {
		if !listQueryField(def, field) {
			return nil, apierror.BadRequestf("field %q is not queryable on %q", field, def.Name)
		}
		if field == "state" && len(def.States) > 0 && !def.HasState(value) {
			return nil, apierror.BadRequestf(
				"invalid state %q, expected one of [%s]", value, strings.Join(def.States, ", "))
		}
		filter[field] = value
	}

	// access narrowing overrides any client filter on the same field
	ruleFilter, err := access.ListFilter(def.List.Let, actor)
	if err != nil {
		return nil, err
	}
	for field, value := range ruleFilter {
		filter[field] = value
	}

	cursor := params.Cursor
	if cursor.Field == "" {
		cursor.Field = docstore.FieldCreatedAt
	}

	projection := listProjection(def, cursor.Field)
	return e.store.Paginate(ctx, def.Name, filter, cursor, projection)
}

func listQueryField(def *apidef.Definition, field string) bool {
	for _, allowed := range def.List.Query {
		if allowed == field {
			return true
		}
	}
	return false
}

// listProjection is the base bookkeeping set plus the declared projection,
// always including the cursor field so pagination can bookmark it.
func listProjection(def *apidef.Definition, cursorField string) []string {
	fields := []string{
		docstore.FieldID,
		"state",
		docstore.FieldCreatedAt,
		docstore.FieldUpdatedAt,
		businessIDField(def.Name),
	}
	fields = append(fields, def.List.Projection...)
	seen := map[string]bool{}
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if !seen[cursorField] {
		out = append(out, cursorField)
	}
	return out
}

// Update merges a patch into a resource after checking the caller's update
// rules against the current document.
func (e *Engine) Update(ctx context.Context, resourceType, id string, patch docstore.Doc, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "update", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	if def.Update == nil {
		return nil, apierror.Forbiddenf("update is not permitted on %q", def.Name)
	}

	current, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}
	rule, err := authorize(def.Update.Let, actor, current)
	if err != nil {
		return nil, err
	}

	update := stripProtected(patch, def.Name)
	if err = coerceDates(update, dateFields(def)); err != nil {
		return nil, err
	}
	for field, value := range def.Update.Set {
		apidef.ParsePath(field).Set(update, value)
	}

	merged := copyDoc(current)
	for k, v := range update {
		merged[k] = v
	}

	scheme := rule.Rule.Validate
	if scheme == "" {
		scheme = def.UpdateValidationScheme(rule.Role)
	}
	if err = e.schemas.Validate(scheme, merged); err != nil {
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
		Actor:        actor.SubjectID,
		Diff:         events.Diff(current, updated),
	})
	return updated, nil
}

// Delete removes a resource and its stored files. The caller must pass both
// the read rules and the delete rules against the current document.
func (e *Engine) Delete(ctx context.Context, resourceType, id string, actor *identity.Actor) (err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "delete", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return err
	}
	if def.Delete == nil {
		return apierror.Forbiddenf("delete is not permitted on %q", def.Name)
	}

	current, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return err
	}
	if err = e.requireRead(def, actor, current); err != nil {
		return err
	}
	if _, err = authorize(def.Delete.Let, actor, current); err != nil {
		return err
	}

	if err = e.store.Delete(ctx, def.Name, id); err != nil {
		return err
	}
	e.deleteStoredFiles(ctx, def.Name, id, "")

	e.publish(ctx, events.Notification{
		Operation:    events.OperationDeleted,
		ResourceType: def.Name,
		ResourceID:   id,
		Actor:        actor.SubjectID,
	})
	return nil
}

// deleteStoredFiles removes every stored object under the resource (or one
// of its sections when sectionName is set). Best-effort: the document write
// already succeeded, failures here only leak storage.
func (e *Engine) deleteStoredFiles(ctx context.Context, resourceType, id, sectionName string) {
	prefix := resourceType + "/" + id + "/"
	if sectionName != "" {
		prefix += sectionName + "/"
	}
	keys, err := e.files.List(ctx, prefix)
	if err != nil {
		e.logger.WithError(err).WithField("prefix", prefix).Warn("failed to list stored files for cleanup")
		return
	}
	for _, key := range keys {
		if err := e.files.Delete(ctx, key); err != nil {
			e.logger.WithError(err).WithField("key", key).Warn("failed to delete stored file")
		}
	}
}
