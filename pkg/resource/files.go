package resource

import (
	"bytes"
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/filestore"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// FileUpload is one incoming file attachment.
type FileUpload struct {
	Name        string
	ContentType string
	Content     []byte
}

// Download pairs a stored file's metadata with its content.
type Download struct {
	Meta    docstore.Doc
	Content []byte
}

// UploadFile attaches a file to a single-document section. The caller names
// the intended operation: "create" requires the section empty, "update"
// replaces the existing attachment.
func (e *Engine) UploadFile(ctx context.Context, resourceType, id, sectionName, op string, upload FileUpload, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "upload_file", started, err) }()

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
	if sec.Kind() != apidef.SectionDocument {
		return nil, apierror.BadRequestf("section %q of %q does not hold a single document", sectionName, def.Name)
	}
	if err = checkMimeType(sec.Document.MimeTypes, upload, sectionName); err != nil {
		return nil, err
	}
	if sec.Document.MaxSize > 0 && int64(len(upload.Content)) > sec.Document.MaxSize {
		return nil, apierror.BadRequestf(
			"file %q exceeds the %d byte limit of section %q", upload.Name, sec.Document.MaxSize, sectionName)
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
	existing, _ := doc[sectionName].(map[string]interface{})
	opDef := sec.OperationFor(op)
	if opDef == nil {
		return nil, apierror.Forbiddenf("section %q of %q does not support %s", sectionName, def.Name, op)
	}
	if _, err = authorize(opDef.Let, actor, doc); err != nil {
		return nil, err
	}

	hash256, hashMd5 := filestore.Digest(upload.Content)
	fileID := filestore.FileID(hash256)
	oldFileID := fileIDOf(existing)
	if oldFileID == fileID {
		return nil, apierror.BadRequestf("file %q is already attached to section %q", upload.Name, sectionName)
	}

	key := filestore.ObjectKey(def.Name, id, sectionName, fileID)
	if err = e.files.Put(ctx, key, bytes.NewReader(upload.Content), upload.ContentType); err != nil {
		return nil, apierror.Internalf("failed to store file: %v", err)
	}

	meta := e.fileMeta(upload, hash256, hashMd5, fileID, actor)
	update := docstore.Doc{sectionName: meta}
	if len(opDef.Set) > 0 {
		for field, v := range opDef.Set {
			apidef.ParsePath(field).Set(update, v)
		}
	}

	updated, err := e.persistFileUpdate(ctx, def, doc, id, update, []string{key})
	if err != nil {
		return nil, err
	}

	// the replaced attachment's bytes stay around only on versioned sections
	if oldFileID != "" && !sec.Versioned {
		e.deleteFileKey(ctx, filestore.ObjectKey(def.Name, id, sectionName, oldFileID))
	}

	e.metrics.ObserveUpload(def.Name, sectionName, len(upload.Content))
	e.publish(ctx, events.Notification{
		Operation:    events.OperationFileUploaded,
		ResourceType: def.Name,
		ResourceID:   id,
		SectionName:  sectionName,
		Actor:        actor.SubjectID,
		Diff:         docstore.Doc{sectionName: meta},
	})
	return updated, nil
}

// UploadFiles attaches a batch of files to a multi-document section. The
// caller names the intended operation: "create" requires the section empty,
// "update" appends to the existing list. Files are hashed and stored
// concurrently; the section metadata is appended in one write.
func (e *Engine) UploadFiles(ctx context.Context, resourceType, id, sectionName, op string, uploads []FileUpload, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "upload_files", started, err) }()

	if op != "create" && op != "update" {
		return nil, apierror.BadRequestf("unknown section operation %q", op)
	}
	if len(uploads) == 0 {
		return nil, apierror.BadRequestf("no files provided")
	}

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	sec, err := e.section(def, sectionName)
	if err != nil {
		return nil, err
	}
	if sec.Kind() != apidef.SectionDocuments {
		return nil, apierror.BadRequestf("section %q of %q does not hold a document list", sectionName, def.Name)
	}
	for _, upload := range uploads {
		if err = checkMimeType(sec.Documents.MimeTypes, upload, sectionName); err != nil {
			return nil, err
		}
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
	existing, _ := doc[sectionName].([]interface{})
	opDef := sec.OperationFor(op)
	if opDef == nil {
		return nil, apierror.Forbiddenf("section %q of %q does not support %s", sectionName, def.Name, op)
	}
	if _, err = authorize(opDef.Let, actor, doc); err != nil {
		return nil, err
	}

	if sec.Documents.MaxCount > 0 && len(existing)+len(uploads) > sec.Documents.MaxCount {
		return nil, apierror.BadRequestf(
			"section %q allows at most %d documents, %d would result",
			sectionName, sec.Documents.MaxCount, len(existing)+len(uploads))
	}

	// hash up front so duplicates fail before any bytes are stored
	metas := make([]docstore.Doc, len(uploads))
	keys := make([]string, len(uploads))
	seen := map[string]bool{}
	for i, upload := range uploads {
		hash256, hashMd5 := filestore.Digest(upload.Content)
		fileID := filestore.FileID(hash256)
		if seen[fileID] || containsFileID(existing, fileID) {
			return nil, apierror.BadRequestf("file %q is already attached to section %q", upload.Name, sectionName)
		}
		seen[fileID] = true
		metas[i] = e.fileMeta(upload, hash256, hashMd5, fileID, actor)
		keys[i] = filestore.ObjectKey(def.Name, id, sectionName, fileID)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i := range uploads {
		i := i
		group.Go(func() error {
			return e.files.Put(groupCtx, keys[i], bytes.NewReader(uploads[i].Content), uploads[i].ContentType)
		})
	}
	if err = group.Wait(); err != nil {
		e.compensateFileDeletes(ctx, keys)
		return nil, apierror.Internalf("failed to store files: %v", err)
	}

	list := make([]interface{}, 0, len(existing)+len(metas))
	list = append(list, existing...)
	for _, meta := range metas {
		list = append(list, meta)
	}
	update := docstore.Doc{sectionName: list}
	if len(opDef.Set) > 0 {
		for field, v := range opDef.Set {
			apidef.ParsePath(field).Set(update, v)
		}
	}

	updated, err := e.persistFileUpdate(ctx, def, doc, id, update, keys)
	if err != nil {
		return nil, err
	}

	for _, upload := range uploads {
		e.metrics.ObserveUpload(def.Name, sectionName, len(upload.Content))
	}
	e.publish(ctx, events.Notification{
		Operation:    events.OperationFileUploaded,
		ResourceType: def.Name,
		ResourceID:   id,
		SectionName:  sectionName,
		Actor:        actor.SubjectID,
		Diff:         docstore.Doc{sectionName: list},
	})
	return updated, nil
}

// persistFileUpdate revalidates and writes the section update. When the
// write fails, the freshly stored objects are deleted so storage does not
// leak; that cleanup is best-effort and never masks the write error.
func (e *Engine) persistFileUpdate(ctx context.Context, def *apidef.Definition, doc docstore.Doc, id string, update docstore.Doc, newKeys []string) (docstore.Doc, error) {
	merged := copyDoc(doc)
	for k, v := range update {
		merged[k] = v
	}
	if err := e.schemas.Validate(def.ResourceSchemeName, merged); err != nil {
		e.compensateFileDeletes(ctx, newKeys)
		return nil, err
	}

	updated, err := e.store.UpdateOne(ctx, def.Name, id, update)
	if err != nil {
		e.compensateFileDeletes(ctx, newKeys)
		return nil, err
	}
	return updated, nil
}

func (e *Engine) compensateFileDeletes(ctx context.Context, keys []string) {
	for _, key := range keys {
		e.deleteFileKey(ctx, key)
	}
}

func (e *Engine) deleteFileKey(ctx context.Context, key string) {
	if err := e.files.Delete(ctx, key); err != nil {
		e.logger.WithError(err).WithField("key", key).Warn("failed to delete stored file")
	}
}

func (e *Engine) fileMeta(upload FileUpload, hash256, hashMd5, fileID string, actor *identity.Actor) docstore.Doc {
	return docstore.Doc{
		"fileName":         upload.Name,
		"mimeType":         upload.ContentType,
		"fileId":           fileID,
		"hash256":          hash256,
		"hashMd5":          hashMd5,
		"size":             len(upload.Content),
		"uploadedAt":       e.now().UTC(),
		"uploadedByAuthId": actor.SubjectID,
	}
}

func checkMimeType(allowed []string, upload FileUpload, sectionName string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, mime := range allowed {
		if mime == upload.ContentType {
			return nil
		}
	}
	return apierror.BadRequestf(
		"file %q has mime type %q, section %q allows [%s]",
		upload.Name, upload.ContentType, sectionName, strings.Join(allowed, ", "))
}

func fileIDOf(meta map[string]interface{}) string {
	if meta == nil {
		return ""
	}
	fileID, _ := meta["fileId"].(string)
	return fileID
}

func containsFileID(list []interface{}, fileID string) bool {
	for _, item := range list {
		if meta, ok := item.(map[string]interface{}); ok && fileIDOf(meta) == fileID {
			return true
		}
	}
	return false
}

// findFileMeta locates an attachment whose file id begins with the given
// prefix, in either a single- or multi-document section value.
func findFileMeta(value interface{}, fileID string) (docstore.Doc, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		if strings.HasPrefix(fileIDOf(v), fileID) {
			return v, true
		}
	case []interface{}:
		for _, item := range v {
			if meta, ok := item.(map[string]interface{}); ok && strings.HasPrefix(fileIDOf(meta), fileID) {
				return meta, true
			}
		}
	}
	return nil, false
}

// DownloadFile returns a stored attachment's content and metadata. The file
// id may be a prefix of the stored id.
func (e *Engine) DownloadFile(ctx context.Context, resourceType, id, sectionName, fileID string, actor *identity.Actor) (out *Download, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "download_file", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	sec, err := e.section(def, sectionName)
	if err != nil {
		return nil, err
	}
	if sec.Kind() == apidef.SectionPayload {
		return nil, apierror.BadRequestf("section %q of %q holds no file attachments", sectionName, def.Name)
	}

	doc, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}
	if err = e.requireRead(def, actor, doc); err != nil {
		return nil, err
	}

	meta, ok := findFileMeta(doc[sectionName], fileID)
	if !ok {
		return nil, apierror.NotFoundf("file %q not found in section %q of resource %q", fileID, sectionName, id)
	}

	key := filestore.ObjectKey(def.Name, id, sectionName, fileIDOf(meta))
	content, err := e.files.Get(ctx, key)
	if err != nil {
		if err == filestore.ErrNotFound {
			return nil, apierror.NotFoundf("file %q not found in section %q of resource %q", fileID, sectionName, id)
		}
		return nil, apierror.Internalf("failed to read stored file: %v", err)
	}
	return &Download{Meta: meta, Content: content}, nil
}

// DeleteDocument detaches one file from a section. The stored bytes are
// removed unless the section is versioned.
func (e *Engine) DeleteDocument(ctx context.Context, resourceType, id, sectionName, fileID string, actor *identity.Actor) (out docstore.Doc, err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "delete_document", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, err
	}
	sec, err := e.section(def, sectionName)
	if err != nil {
		return nil, err
	}
	if sec.Kind() == apidef.SectionPayload {
		return nil, apierror.BadRequestf("section %q of %q holds no file attachments", sectionName, def.Name)
	}

	doc, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, err
	}
	if err = e.requireRead(def, actor, doc); err != nil {
		return nil, err
	}
	if sec.Delete == nil {
		return nil, apierror.Forbiddenf("section %q of %q does not support delete", sectionName, def.Name)
	}
	if _, err = authorize(sec.Delete.Let, actor, doc); err != nil {
		return nil, err
	}

	meta, ok := findFileMeta(doc[sectionName], fileID)
	if !ok {
		return nil, apierror.NotFoundf("file %q not found in section %q of resource %q", fileID, sectionName, id)
	}

	var update docstore.Doc
	switch value := doc[sectionName].(type) {
	case []interface{}:
		filtered := make([]interface{}, 0, len(value))
		for _, item := range value {
			if itemMeta, ok := item.(map[string]interface{}); ok && fileIDOf(itemMeta) == fileIDOf(meta) {
				continue
			}
			filtered = append(filtered, item)
		}
		update = docstore.Doc{sectionName: filtered}
	default:
		update = docstore.Doc{sectionName: nil}
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

	if !sec.Versioned {
		e.deleteFileKey(ctx, filestore.ObjectKey(def.Name, id, sectionName, fileIDOf(meta)))
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
