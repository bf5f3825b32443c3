package storage

import (
	"fmt"

	"report-desk/internal/domain"
)

// Store is a small durable key/value store for per-user client state.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Write applies every delete and then every set as one unit.
	Write(batch Batch) error
	Close() error
}

// Batch groups mutations that must land together.
type Batch struct {
	Delete []string
	Set    map[string]string
}

// IsEmpty reports whether the batch would change nothing.
func (b Batch) IsEmpty() bool {
	return len(b.Delete) == 0 && len(b.Set) == 0
}

// Open builds the store selected by backend.
func Open(backend domain.StoreBackend, path string) (Store, error) {
	switch backend {
	case domain.StoreBackendFile, "":
		return NewFileStore(path), nil
	case domain.StoreBackendSQLite:
		return NewSQLiteStore(path)
	case domain.StoreBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
