package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local implements Store on the local filesystem. Keys map directly to
// paths below the root directory.
type Local struct {
	rootDir string
}

// NewLocal creates a filesystem-backed store rooted at rootDir.
func NewLocal(rootDir string) (*Local, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &Local{rootDir: rootDir}, nil
}

func (l *Local) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.rootDir, cleaned), nil
}

// Put implements Store.Put.
func (l *Local) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write object file: %w", err)
	}
	return nil
}

// Get implements Store.Get.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object file: %w", err)
	}
	return data, nil
}

// Exists implements Store.Exists.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	path, err := l.path(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object file: %w", err)
	}
	return true, nil
}

// Delete implements Store.Delete.
func (l *Local) Delete(ctx context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object file: %w", err)
	}
	return nil
}

// Copy implements Store.Copy.
func (l *Local) Copy(ctx context.Context, from, to string) error {
	data, err := l.Get(ctx, from)
	if err != nil {
		return err
	}
	return l.Put(ctx, to, bytes.NewReader(data), "")
}

// AbsPath implements Store.AbsPath, returning the absolute filesystem path
// of the object.
func (l *Local) AbsPath(key string) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

// List implements Store.List.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.rootDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk root directory: %w", err)
	}
	return keys, nil
}
