package embedding

import (
	"context"
	"fmt"
)

// Service wraps a registered model behind the batch-embed capability the
// clustering engine consumes. The underlying model is a process-wide
// singleton from the engine's point of view: loaded once, read-only, safe
// for concurrent callers.
type Service struct {
	model Model
}

// NewService creates an embedding service using the default model.
func NewService() (*Service, error) {
	return NewServiceWithModel(DefaultModelVersion())
}

// NewServiceWithModel creates an embedding service using the given model
// version, falling back to the default version when empty.
func NewServiceWithModel(version string) (*Service, error) {
	if version == "" {
		version = DefaultModelVersion()
	}

	model, err := GetModel(version)
	if err != nil {
		return nil, fmt.Errorf("get embedding model %s: %w", version, err)
	}
	return &Service{model: model}, nil
}

// Name returns the human-readable model name.
func (s *Service) Name() string {
	return s.model.Name()
}

// Version returns the short version string.
func (s *Service) Version() string {
	return s.model.Version()
}

// Dimensions returns the embedding vector size.
func (s *Service) Dimensions() int {
	return s.model.Dimensions()
}

// EmbedBatch generates embeddings for multiple texts.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.model.EmbedBatch(ctx, texts)
}

// Close releases model resources.
func (s *Service) Close() error {
	return s.model.Close()
}
