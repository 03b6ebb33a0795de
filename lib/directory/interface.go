// Package directory resolves tenant codes to their form configuration. The
// backing store is pluggable; backends register themselves by name and are
// built from JSON configuration fragments.
package directory

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no client with the given code exists.
	ErrNotFound = errors.New("directory: client not found")

	// ErrCantDecode is returned when a backend cannot decode its stored
	// document into client records.
	ErrCantDecode = errors.New("directory: can't decode client record")

	// ErrBadConfig is returned when a backend's configuration is invalid.
	ErrBadConfig = errors.New("directory: configuration is invalid")
)

// Interface is the lookup contract the submission pipeline depends on.
// Implementations must be safe for concurrent use and must not cache unless
// the backend itself is a cache: the file backend re-reads its document on
// every call so edits take effect immediately.
type Interface interface {
	// Lookup resolves a tenant code to its client record, or ErrNotFound.
	Lookup(ctx context.Context, code string) (Client, error)
}
