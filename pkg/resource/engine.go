package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/filestore"
	"github.com/dataroomhq/dataroom/pkg/identity"
	"github.com/dataroomhq/dataroom/pkg/observability"
	"github.com/dataroomhq/dataroom/pkg/validator"
)

// Config wires the engine's dependencies.
type Config struct {
	Definitions *apidef.Registry
	Store       *docstore.Adapter
	Files       filestore.Store
	Validator   validator.Validator
	// Events receives change notifications. Defaults to Broker.
	Events events.Sink
	// Broker serves Subscribe. Defaults to a private in-process broker.
	Broker *events.Broker
	// IDs issues business identifiers. Defaults to WallClock.
	IDs     IDGenerator
	Metrics *observability.Metrics
	Logger  *logrus.Entry
}

// Engine executes resource operations driven by API definitions.
type Engine struct {
	defs    *apidef.Registry
	store   *docstore.Adapter
	files   filestore.Store
	schemas validator.Validator
	sink    events.Sink
	broker  *events.Broker
	ids     IDGenerator
	metrics *observability.Metrics
	logger  *logrus.Entry
	now     func() time.Time
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Definitions == nil {
		return nil, fmt.Errorf("resource engine requires a definition registry")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("resource engine requires a document store")
	}
	if cfg.Files == nil {
		return nil, fmt.Errorf("resource engine requires a file store")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("resource engine requires a validator")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Broker == nil {
		cfg.Broker = events.NewBroker(nil)
	}
	if cfg.Events == nil {
		cfg.Events = cfg.Broker
	}
	if cfg.IDs == nil {
		cfg.IDs = NewWallClock()
	}
	return &Engine{
		defs:    cfg.Definitions,
		store:   cfg.Store,
		files:   cfg.Files,
		schemas: cfg.Validator,
		sink:    cfg.Events,
		broker:  cfg.Broker,
		ids:     cfg.IDs,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.WithField("component", "resource"),
		now:     time.Now,
	}, nil
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Types returns the resource types the engine serves.
func (e *Engine) Types() []string {
	return e.defs.Types()
}

// Definition exposes the loaded definition for a resource type.
func (e *Engine) Definition(resourceType string) (*apidef.Definition, error) {
	return e.definition(resourceType)
}

// EnsureIndexes applies every definition's configured indexes. Best-effort,
// called once at startup.
func (e *Engine) EnsureIndexes(ctx context.Context) {
	for _, name := range e.defs.Types() {
		def, ok := e.defs.Get(name)
		if !ok || len(def.Indexes) == 0 {
			continue
		}
		indexes := make([]docstore.Index, 0, len(def.Indexes))
		for _, idx := range def.Indexes {
			indexes = append(indexes, docstore.Index{Key: idx.Key, Unique: idx.Unique})
		}
		e.store.EnsureIndexes(ctx, def.Name, indexes)
	}
}

func (e *Engine) definition(resourceType string) (*apidef.Definition, error) {
	def, ok := e.defs.Get(resourceType)
	if !ok {
		return nil, apierror.NotFoundf("unknown resource type %q", resourceType)
	}
	return def, nil
}

func (e *Engine) section(def *apidef.Definition, name string) (*apidef.Section, error) {
	sec, ok := def.Section(name)
	if !ok {
		return nil, apierror.BadRequestf("resource type %q has no section %q", def.Name, name)
	}
	return sec, nil
}

// requireRead re-runs the resource's read rules; operations that expose
// resource data always pass here first.
func (e *Engine) requireRead(def *apidef.Definition, actor *identity.Actor, doc docstore.Doc) error {
	if def.Get == nil {
		return apierror.Forbiddenf("read is not permitted on %q", def.Name)
	}
	_, err := authorize(def.Get.Let, actor, doc)
	return err
}

func (e *Engine) publish(ctx context.Context, n events.Notification) {
	n.Timestamp = e.now().UTC()
	n.Diff = events.StripPayloads(n.Diff)
	if err := e.sink.Publish(ctx, n); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"resource_type": n.ResourceType,
			"resource_id":   n.ResourceID,
			"operation":     n.Operation,
		}).Warn("failed to publish change notification")
		return
	}
	e.metrics.ObserveNotification(n.ResourceType, string(n.Operation))
}

func (e *Engine) observe(resourceType, operation string, started time.Time, err error) {
	e.metrics.ObserveOperation(resourceType, operation, started, err)
}

// businessIDField names the definition-scoped identifier field, e.g.
// "loanId" for the loan type.
func businessIDField(resourceType string) string {
	return resourceType + "Id"
}

// protectedFields are never writable by clients.
func protectedFields(resourceType string) []string {
	return []string{
		docstore.FieldID,
		docstore.FieldCreatedAt,
		docstore.FieldUpdatedAt,
		businessIDField(resourceType),
	}
}

func stripProtected(doc docstore.Doc, resourceType string) docstore.Doc {
	out := docstore.Doc{}
	for k, v := range doc {
		out[k] = v
	}
	for _, field := range protectedFields(resourceType) {
		delete(out, field)
	}
	return out
}

func copyDoc(doc docstore.Doc) docstore.Doc {
	out := make(docstore.Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
