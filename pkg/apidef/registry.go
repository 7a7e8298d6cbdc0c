package apidef

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Registry holds the loaded API definitions, keyed by resource type name.
// Definitions are immutable once loaded; Watch swaps the whole set atomically
// on reload.
type Registry struct {
	dir    string
	logger *logrus.Entry

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry backed by the given definitions
// directory.
func NewRegistry(dir string, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		dir:    dir,
		logger: logger.WithField("component", "apidef"),
		defs:   map[string]*Definition{},
	}
}

// Load reads every *.yaml/*.yml file in the registry directory, validates each
// definition and installs the resulting set. A single invalid definition fails
// the whole load so a partial configuration never goes live.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read definitions directory: %w", err)
	}

	defs := map[string]*Definition{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadDefinition(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to load definition %s: %w", entry.Name(), err)
		}
		if _, exists := defs[def.Name]; exists {
			return fmt.Errorf("duplicate definition for resource type %q", def.Name)
		}
		defs[def.Name] = def
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()

	r.logger.WithField("types", len(defs)).Info("loaded API definitions")
	return nil
}

// LoadDefinition reads and validates a single definition file. When the file
// omits the resource name it defaults to the file's base name.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := def.CheckValid(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Get returns the definition for a resource type.
func (r *Registry) Get(resourceType string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[resourceType]
	return def, ok
}

// Types returns the names of all registered resource types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.defs))
	for name := range r.defs {
		types = append(types, name)
	}
	return types
}

// Register installs a definition directly, for programmatic setup and tests.
func (r *Registry) Register(def *Definition) error {
	if err := def.CheckValid(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// Watch reloads the registry whenever a definition file changes. It blocks
// until the context is cancelled. A reload failure keeps the previous set and
// logs the error.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch definitions directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Load(); err != nil {
				r.logger.WithError(err).Error("definition reload failed, keeping previous set")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.WithError(err).Warn("definition watcher error")
		}
	}
}
