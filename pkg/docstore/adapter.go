package docstore

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apierror"
)

// Adapter guards a Store with the supported-resource whitelist and stamps
// bookkeeping fields server-side. All engine persistence goes through it.
type Adapter struct {
	store     Store
	supported map[string]bool
	logger    *logrus.Entry
	now       func() time.Time
}

// NewAdapter wraps store, allowing operations only on the listed collections.
func NewAdapter(store Store, supported []string, logger *logrus.Entry) *Adapter {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	set := make(map[string]bool, len(supported))
	for _, name := range supported {
		set[name] = true
	}
	return &Adapter{
		store:     store,
		supported: set,
		logger:    logger.WithField("component", "docstore"),
		now:       time.Now,
	}
}

// WithClock overrides the adapter's clock, for tests.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// CheckValidResourceCollection returns Forbidden when the collection is not in
// the supported-resource whitelist.
func (a *Adapter) CheckValidResourceCollection(name string) error {
	if !a.supported[name] {
		return apierror.Forbiddenf("cannot operate on non-resource collection %q", name)
	}
	return nil
}

// Find returns all documents matching filter.
func (a *Adapter) Find(ctx context.Context, collection string, filter Filter, opts *FindOptions) ([]Doc, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}
	return a.store.Find(ctx, collection, filter, opts)
}

// FindOne returns the first document matching filter, or NotFound.
func (a *Adapter) FindOne(ctx context.Context, collection string, filter Filter, opts *FindOptions) (Doc, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}
	doc, err := a.store.FindOne(ctx, collection, filter, opts)
	if err == ErrNoDocuments {
		return nil, apierror.NotFoundf("document not found in %q", collection)
	}
	return doc, err
}

// GetByID loads a document by id, or NotFound naming the id.
func (a *Adapter) GetByID(ctx context.Context, collection, id string, opts *FindOptions) (Doc, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}
	doc, err := a.store.FindOne(ctx, collection, ByID(id), opts)
	if err == ErrNoDocuments {
		return nil, apierror.NotFoundf("resource with id %q not found", id)
	}
	return doc, err
}

// Insert stores doc with createdAt/updatedAt stamped to the current time,
// overriding any client-supplied values, and returns the new id.
func (a *Adapter) Insert(ctx context.Context, collection string, doc Doc) (string, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return "", err
	}
	stamped := copyDoc(doc)
	now := a.now()
	stamped[FieldCreatedAt] = now
	stamped[FieldUpdatedAt] = now
	return a.store.InsertOne(ctx, collection, stamped)
}

// InsertMany stores docs with stamped bookkeeping fields.
func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []Doc) ([]string, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}
	now := a.now()
	stamped := make([]Doc, 0, len(docs))
	for _, doc := range docs {
		s := copyDoc(doc)
		s[FieldCreatedAt] = now
		s[FieldUpdatedAt] = now
		stamped = append(stamped, s)
	}
	return a.store.InsertMany(ctx, collection, stamped)
}

// UpdateOne applies update to the document with the given id, stamping
// updatedAt, and returns the post-update document.
func (a *Adapter) UpdateOne(ctx context.Context, collection, id string, update Doc) (Doc, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}
	stamped := copyDoc(update)
	stamped[FieldUpdatedAt] = a.now()
	doc, err := a.store.UpdateOne(ctx, collection, ByID(id), stamped)
	if err == ErrNoDocuments {
		return nil, apierror.NotFoundf("resource with id %q not found", id)
	}
	return doc, err
}

// UpdateMany applies update to every matching document.
func (a *Adapter) UpdateMany(ctx context.Context, collection string, filter Filter, update Doc) (int64, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return 0, err
	}
	stamped := copyDoc(update)
	stamped[FieldUpdatedAt] = a.now()
	return a.store.UpdateMany(ctx, collection, filter, stamped)
}

// Delete removes the document with the given id.
func (a *Adapter) Delete(ctx context.Context, collection, id string) error {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return err
	}
	err := a.store.DeleteOne(ctx, collection, ByID(id))
	if err == ErrNoDocuments {
		return apierror.NotFoundf("resource with id %q not found", id)
	}
	return err
}

// DeleteMany removes every matching document.
func (a *Adapter) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return 0, err
	}
	return a.store.DeleteMany(ctx, collection, filter)
}

// Count returns the number of matching documents.
func (a *Adapter) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return 0, err
	}
	return a.store.Count(ctx, collection, filter)
}

// Aggregate runs a pipeline against the collection.
func (a *Adapter) Aggregate(ctx context.Context, collection string, pipeline []Doc) ([]Doc, error) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		return nil, err
	}
	return a.store.Aggregate(ctx, collection, pipeline)
}

// EnsureIndexes creates the configured indexes at startup. Failures are logged
// and swallowed; index creation is best-effort.
func (a *Adapter) EnsureIndexes(ctx context.Context, collection string, indexes []Index) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		a.logger.WithError(err).Warn("skipping index creation")
		return
	}
	if err := a.store.CreateIndexes(ctx, collection, indexes); err != nil {
		a.logger.WithError(err).WithField("collection", collection).Error("index creation failed")
	}
}

// DropIndexes removes the collection's indexes. Failures are logged and
// swallowed.
func (a *Adapter) DropIndexes(ctx context.Context, collection string) {
	if err := a.CheckValidResourceCollection(collection); err != nil {
		a.logger.WithError(err).Warn("skipping index drop")
		return
	}
	if err := a.store.DropIndexes(ctx, collection); err != nil {
		a.logger.WithError(err).WithField("collection", collection).Error("index drop failed")
	}
}
