// Package importer turns external listening-history sources into ordered
// scrobble batches.
package importer

import (
	"context"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// Importer is the interface for scrobble sources. Read produces records
// in listening order; callers wrap them in a scrobble.Batch for inclusion
// choices and mode switches.
type Importer interface {
	// Name returns the importer name (used in config and on the CLI).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Read parses the source at path into records in listening order.
	Read(ctx context.Context, path string) ([]scrobble.Record, error)
}

// registry holds registered importer factories.
var registry = make(map[string]func() Importer)

// Register registers an importer factory.
func Register(name string, factory func() Importer) {
	registry[name] = factory
}

// GetRegistered returns all registered importer factories.
func GetRegistered() map[string]func() Importer {
	return registry
}

// New creates the importer registered under name, or nil if unknown.
func New(name string) Importer {
	factory, ok := registry[name]
	if !ok {
		return nil
	}
	return factory()
}
