package filestore

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("filestore: object not found")

// FileIDLength is the number of hex characters of the SHA-256 digest used
// as the public file identifier.
const FileIDLength = 20

// Store is the interface implemented by file storage backends.
type Store interface {
	// Put writes content under key, overwriting any existing object.
	Put(ctx context.Context, key string, content io.Reader, contentType string) error
	// Get returns the content stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
	// Copy duplicates the object under from to the to key.
	Copy(ctx context.Context, from, to string) error
	// List returns all keys beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// AbsPath renders the backend-specific absolute location of key.
	AbsPath(key string) (string, error)
}

// Digest computes the SHA-256 and MD5 hex digests of content.
func Digest(content []byte) (hash256, hashMd5 string) {
	sum := sha256.Sum256(content)
	md5sum := md5.Sum(content)
	return hex.EncodeToString(sum[:]), hex.EncodeToString(md5sum[:])
}

// FileID derives the public file identifier from a SHA-256 hex digest.
func FileID(hash256 string) string {
	if len(hash256) < FileIDLength {
		return hash256
	}
	return hash256[:FileIDLength]
}

// ObjectKey builds the storage key for a file attached to a resource
// section: <type>/<id>/<section>/file/<fileId>.
func ObjectKey(resourceType, resourceID, section, fileID string) string {
	return fmt.Sprintf("%s/%s/%s/file/%s", resourceType, resourceID, section, fileID)
}
