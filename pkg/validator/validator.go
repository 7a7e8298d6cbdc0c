package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
)

const schemaCacheSize = 256

// Schema is a compiled JSON schema.
type Schema = jsonschema.Schema

// Validator checks documents against named schemas.
type Validator interface {
	// Validate checks doc against the named schema. It returns a
	// BadRequest error carrying per-field details on violation, and a
	// PreconditionFailed error when the schema does not exist.
	Validate(scheme string, doc docstore.Doc) error
	// Has reports whether the named schema exists.
	Has(scheme string) bool
}

// SchemaValidator is a Validator backed by a directory of JSON schema files,
// one <name>.json file per scheme.
type SchemaValidator struct {
	dir    string
	logger *logrus.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *jsonschema.Schema]
}

// New creates a SchemaValidator reading schemas from dir.
func New(dir string, logger *logrus.Logger) (*SchemaValidator, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cache, err := lru.New[string, *jsonschema.Schema](schemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &SchemaValidator{dir: dir, logger: logger, cache: cache}, nil
}

// Has implements Validator.Has.
func (v *SchemaValidator) Has(scheme string) bool {
	if _, ok := v.cache.Get(scheme); ok {
		return true
	}
	_, err := os.Stat(v.schemaPath(scheme))
	return err == nil
}

// Validate implements Validator.Validate.
func (v *SchemaValidator) Validate(scheme string, doc docstore.Doc) error {
	schema, err := v.load(scheme)
	if err != nil {
		return err
	}

	payload, err := Normalize(doc)
	if err != nil {
		return apierror.Internalf("failed to normalize document for validation: %v", err)
	}

	if err := schema.Validate(payload); err != nil {
		var ve *jsonschema.ValidationError
		details := []string{err.Error()}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			ve = verr
			details = flattenCauses(ve)
		}
		v.logger.WithFields(logrus.Fields{
			"scheme":     scheme,
			"violations": len(details),
		}).Debug("document failed schema validation")
		return apierror.BadRequestf("document does not match scheme %q", scheme).WithDetails(details...)
	}
	return nil
}

func (v *SchemaValidator) schemaPath(scheme string) string {
	return filepath.Join(v.dir, scheme+".json")
}

func (v *SchemaValidator) load(scheme string) (*jsonschema.Schema, error) {
	if schema, ok := v.cache.Get(scheme); ok {
		return schema, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if schema, ok := v.cache.Get(scheme); ok {
		return schema, nil
	}

	path := v.schemaPath(scheme)
	if _, err := os.Stat(path); err != nil {
		return nil, apierror.PreconditionFailedf("validation scheme %q is not configured", scheme)
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, apierror.Internalf("failed to compile scheme %q: %v", scheme, err)
	}

	v.cache.Add(scheme, schema)
	return schema, nil
}

// flattenCauses walks a validation error tree and renders one line per leaf
// violation, sorted for stable output.
func flattenCauses(ve *jsonschema.ValidationError) []string {
	var details []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			details = append(details, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	sort.Strings(details)
	return dedupe(details)
}

func dedupe(items []string) []string {
	out := items[:0]
	var prev string
	for i, item := range items {
		if i > 0 && item == prev {
			continue
		}
		out = append(out, item)
		prev = item
	}
	return out
}

// Static is a Validator over an in-memory set of pre-compiled schemas, used
// in tests and embedded setups.
type Static struct {
	Schemas map[string]*jsonschema.Schema
}

// Has implements Validator.Has.
func (s *Static) Has(scheme string) bool {
	_, ok := s.Schemas[scheme]
	return ok
}

// Validate implements Validator.Validate.
func (s *Static) Validate(scheme string, doc docstore.Doc) error {
	schema, ok := s.Schemas[scheme]
	if !ok {
		return apierror.PreconditionFailedf("validation scheme %q is not configured", scheme)
	}
	payload, err := Normalize(doc)
	if err != nil {
		return apierror.Internalf("failed to normalize document for validation: %v", err)
	}
	if err := schema.Validate(payload); err != nil {
		details := []string{err.Error()}
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			details = flattenCauses(ve)
		}
		return apierror.BadRequestf("document does not match scheme %q", scheme).WithDetails(details...)
	}
	return nil
}

// CompileString compiles a schema from source text, for tests and embedded
// schemas.
func CompileString(name, source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}
