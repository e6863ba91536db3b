package labelweaver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Embedder turns text into a vector. Injected; the engine never
// constructs one. Implementations may block or call out over the
// network, so they must honor ctx cancellation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ExampleLoader resolves an external few-shot pool reference into
// records. Injected; dataset IO is not this engine's concern.
type ExampleLoader interface {
	LoadExamples(ctx context.Context, ref string) ([]Record, error)
}

// Example is one labeled record in the few-shot pool, immutable after
// load. The ID keys its cached embedding.
type Example struct {
	ID     string
	Fields Record
}

// ExampleStore holds the few-shot pool and its embedding cache. The pool
// is populated once and read-only during labeling; embeddings are
// computed at most once per example and cached for the store lifetime,
// so concurrent reads after population need no coordination.
type ExampleStore struct {
	cfg      *TaskConfig
	examples []Example
	embedder Embedder
	logger   *zap.Logger

	mu      sync.RWMutex
	vectors map[string][]float32
	flight  singleflight.Group
}

// StoreOption configures an ExampleStore.
type StoreOption func(*ExampleStore)

// WithStoreEmbedder injects the embedding capability. Required for
// semantic similarity selection; fixed selection works without it.
func WithStoreEmbedder(e Embedder) StoreOption {
	return func(s *ExampleStore) { s.embedder = e }
}

// WithStoreLogger attaches a logger. Default is a nop logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *ExampleStore) { s.logger = l }
}

// NewExampleStore materializes the few-shot pool from the config: inline
// examples are used directly, an external reference is resolved through
// loader. A nil loader with a reference configured is a config error.
func NewExampleStore(ctx context.Context, cfg *TaskConfig, loader ExampleLoader, opts ...StoreOption) (*ExampleStore, error) {
	s := &ExampleStore{
		cfg:     cfg,
		logger:  zap.NewNop(),
		vectors: make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(s)
	}

	src := cfg.Prompt.FewShotExamples
	var records []Record
	switch {
	case len(src.Inline) > 0:
		records = src.Inline
	case src.Ref != "":
		if loader == nil {
			return nil, NewSchemaConfigError("prompt.few_shot_examples",
				fmt.Sprintf("pool reference %q configured but no example loader provided", src.Ref))
		}
		loaded, err := loader.LoadExamples(ctx, src.Ref)
		if err != nil {
			return nil, fmt.Errorf("load examples from %q: %w", src.Ref, err)
		}
		records = loaded
	}

	for _, r := range records {
		s.examples = append(s.examples, Example{ID: uuid.NewString(), Fields: r.Clone()})
	}
	s.logger.Debug("example pool loaded",
		zap.String("task", cfg.TaskName),
		zap.Int("examples", len(s.examples)))
	return s, nil
}

// Examples returns the pool in load order. Callers must not mutate it.
func (s *ExampleStore) Examples() []Example {
	return s.examples
}

// Len returns the pool size.
func (s *ExampleStore) Len() int {
	return len(s.examples)
}

// embeddingText renders the record through the example template with the
// answer fields masked, so retrieval similarity is computed over the
// query-relevant portion only. The same masking is applied to pool
// examples and to queries, keeping both in one embedding space.
func (s *ExampleStore) embeddingText(r Record) (string, error) {
	return Render(s.cfg.Prompt.ExampleTemplate, maskedBindings(s.cfg, r))
}

// EmbeddingOf returns the cached embedding for a pool example, computing
// it on first access. Concurrent first accesses of the same example are
// collapsed into one Embed call.
func (s *ExampleStore) EmbeddingOf(ctx context.Context, ex Example) ([]float32, error) {
	s.mu.RLock()
	vec, ok := s.vectors[ex.ID]
	s.mu.RUnlock()
	if ok {
		return vec, nil
	}
	if s.embedder == nil {
		return nil, NewSchemaConfigError("prompt.few_shot_selection",
			"semantic similarity selection needs an embedder")
	}

	out, err, _ := s.flight.Do(ex.ID, func() (any, error) {
		// Re-check under the flight: a caller that missed the cache may
		// arrive after an earlier flight already stored the vector.
		s.mu.RLock()
		cached, ok := s.vectors[ex.ID]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
		text, err := s.embeddingText(ex.Fields)
		if err != nil {
			return nil, err
		}
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed example: %w", err)
		}
		s.mu.Lock()
		s.vectors[ex.ID] = vec
		s.mu.Unlock()
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}

// QueryEmbedding embeds a query record with the same masking convention
// as the pool examples. Not cached; queries are one-shot.
func (s *ExampleStore) QueryEmbedding(ctx context.Context, query Record) ([]float32, error) {
	if s.embedder == nil {
		return nil, NewSchemaConfigError("prompt.few_shot_selection",
			"semantic similarity selection needs an embedder")
	}
	text, err := s.embeddingText(query)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}
