package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/uvensys/formgate/lib/directory"
)

func init() {
	directory.Register("file", Factory{})
}

// Factory builds flat-file directory backends from a json.RawMessage
// configuration fragment.
type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (directory.Interface, error) {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return nil, fmt.Errorf("%w: %w", directory.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %w", directory.ErrBadConfig, err)
	}

	if config.Path == "" {
		slog.Warn("no clients file configured, serving the embedded example directory")
	}

	return &Store{path: config.Path}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return fmt.Errorf("%w: %w", directory.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return fmt.Errorf("%w: %w", directory.ErrBadConfig, err)
	}

	return nil
}

// Config is the flat-file backend configuration.
type Config struct {
	// Path of the clients document, JSON or YAML. Empty means the embedded
	// example directory.
	Path string `json:"path"`
}

// Valid checks the document exists and parses.
func (c Config) Valid() error {
	if c.Path == "" {
		return nil
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("directory/file: can't read %s: %w", c.Path, err)
	}

	if _, err := Parse(raw); err != nil {
		return fmt.Errorf("directory/file: can't parse %s: %w", c.Path, err)
	}

	return nil
}
