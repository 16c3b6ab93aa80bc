package snapshot

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the backend holds no value for the storage key
	ErrNotFound = errors.New("storage key not found")

	// ErrQuotaExceeded indicates the backend refused a write for lack of space
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Backend is a synchronous key/value store holding serialized blobs.
//
// Save must return an error wrapping ErrQuotaExceeded when the write is
// refused for capacity reasons, and must leave the previous value intact in
// that case. Load returns ErrNotFound for absent keys.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}
