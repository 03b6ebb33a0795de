// Package file implements the flat-file directory backend. The document is
// a JSON or YAML array of client records and is re-read on every lookup, so
// edits take effect without a restart. This trades a file read per request
// for always-fresh configuration.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/uvensys/formgate/data"
	"github.com/uvensys/formgate/internal"
	"github.com/uvensys/formgate/lib/directory"
	"sigs.k8s.io/yaml"
)

// Store implements directory.Interface backed by a flat file. A Store with
// an empty path serves the embedded example directory; useful for smoke
// tests, useless in production.
type Store struct {
	path string
}

func (s *Store) read() ([]byte, error) {
	if s.path == "" {
		return fs.ReadFile(data.Clients, "clients.json")
	}
	return os.ReadFile(s.path)
}

// Lookup re-reads the whole document and scans it for the given code.
func (s *Store) Lookup(ctx context.Context, code string) (directory.Client, error) {
	if err := ctx.Err(); err != nil {
		return directory.Client{}, err
	}

	raw, err := s.read()
	if err != nil {
		return directory.Client{}, fmt.Errorf("directory/file: can't read %s: %w", s.path, err)
	}

	clients, err := Parse(raw)
	if err != nil {
		return directory.Client{}, err
	}

	slog.Debug("directory document read", "path", s.path, "hash", internal.FastHash(string(raw)), "clients", len(clients))

	for _, client := range clients {
		if client.Code == code {
			return client, nil
		}
	}

	return directory.Client{}, fmt.Errorf("%w: %q", directory.ErrNotFound, code)
}

// Parse decodes a directory document. YAML is a superset of JSON, so both
// formats go through the same decoder.
func Parse(raw []byte) ([]directory.Client, error) {
	var clients []directory.Client
	if err := yaml.Unmarshal(raw, &clients); err != nil {
		return nil, fmt.Errorf("%w: %w", directory.ErrCantDecode, err)
	}
	return clients, nil
}
