// Package embedding provides document summary embedding via swappable
// provider models. The aggregation engine consumes it only through the
// batch-embed capability; a missing or failing provider degrades clustering,
// it never aborts a call.
package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Model represents a text embedding provider.
type Model interface {
	// Name returns the human-readable provider name.
	Name() string

	// Version returns a short version string for telemetry and config.
	Version() string

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// EmbedBatch generates one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases provider resources.
	Close() error
}

// ModelMetadata describes an embedding provider for config and diagnostics.
type ModelMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Dimensions  int    `json:"dimensions"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// ModelFactory creates a new instance of an embedding model.
type ModelFactory func() (Model, error)

// ModelRegistry provides model lookup by version.
type ModelRegistry struct {
	mu           sync.RWMutex
	models       map[string]ModelFactory
	metadata     map[string]ModelMetadata
	defaultModel string
}

// NewModelRegistry creates an empty model registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models:   make(map[string]ModelFactory),
		metadata: make(map[string]ModelMetadata),
	}
}

// Register adds a model factory to the registry.
func (r *ModelRegistry) Register(meta ModelMetadata, factory ModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[meta.Version] = factory
	r.metadata[meta.Version] = meta

	if meta.Default {
		r.defaultModel = meta.Version
	}
}

// Get creates a new instance of the model with the given version.
func (r *ModelRegistry) Get(version string) (Model, error) {
	r.mu.RLock()
	factory, ok := r.models[version]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding model version: %s", version)
	}
	return factory()
}

// Default returns the default model version, or empty when none registered.
func (r *ModelRegistry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel
}

// List returns metadata for all registered models.
func (r *ModelRegistry) List() []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]ModelMetadata, 0, len(r.metadata))
	for _, meta := range r.metadata {
		list = append(list, meta)
	}
	return list
}

// defaultRegistry is the process-wide registry models register into at init.
var defaultRegistry = NewModelRegistry()

// RegisterModel adds a model to the default registry.
func RegisterModel(meta ModelMetadata, factory ModelFactory) {
	defaultRegistry.Register(meta, factory)
}

// GetModel creates a model from the default registry.
func GetModel(version string) (Model, error) {
	return defaultRegistry.Get(version)
}

// DefaultModelVersion returns the default registered model version.
func DefaultModelVersion() string {
	return defaultRegistry.Default()
}
