// Package store persists small named resources such as the saved queue and
// the tag cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned by Read when the named resource does not exist.
var ErrNotFound = errors.New("store: resource not found")

// Store reads, writes and deletes named blobs.
type Store interface {
	// Read returns the resource contents or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write replaces the resource contents.
	Write(ctx context.Context, name string, data []byte) error
	// Delete removes the resource. Deleting a missing resource is not an error.
	Delete(ctx context.Context, name string) error
	Close() error
}

// Backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const sqliteFile = "campfire.db"

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Open returns the store for backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFiles(dataDir), nil
	case BackendSQLite:
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := NewSQLite(filepath.Join(dataDir, sqliteFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid resource name %q", name)
	}
	return nil
}
