// Package labelweaver assembles LLM labeling prompts from declarative
// task configs and validates the model's responses against the task's
// output schema. The LLM call itself, dataset IO, and the embedding
// model are injected capabilities; this package owns template
// resolution, few-shot selection, prompt assembly, and output parsing.
package labelweaver

import (
	"context"

	"go.uber.org/zap"
)

// Engine drives one labeling task: it owns the validated config, the
// derived output schema, the few-shot pool, and the selector. All
// per-query operations are pure functions of their inputs apart from
// the store's write-once embedding cache, so one Engine is safe for
// concurrent use across records.
type Engine struct {
	cfg      *TaskConfig
	schema   *OutputSchema
	store    *ExampleStore
	selector Selector
	logger   *zap.Logger

	embedder Embedder
	loader   ExampleLoader
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder injects the embedding capability used for semantic
// similarity selection.
func WithEmbedder(e Embedder) Option {
	return func(en *Engine) { en.embedder = e }
}

// WithExampleLoader injects the loader that resolves an external
// few-shot pool reference.
func WithExampleLoader(l ExampleLoader) Option {
	return func(en *Engine) { en.loader = l }
}

// WithSelector overrides the policy-derived selector, e.g. to swap in a
// QdrantSelector. The replacement must honor the Selector contract.
func WithSelector(s Selector) Option {
	return func(en *Engine) { en.selector = s }
}

// WithLogger attaches a logger. Default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(en *Engine) { en.logger = l }
}

// NewEngine validates the config, derives the output schema, loads the
// few-shot pool, and wires the configured selection policy.
func NewEngine(ctx context.Context, cfg *TaskConfig, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	schema, err := SchemaFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	e.schema = schema

	store, err := NewExampleStore(ctx, cfg, e.loader,
		WithStoreEmbedder(e.embedder),
		WithStoreLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.store = store

	if e.selector == nil {
		sel, err := selectorForPolicy(cfg.Prompt.FewShotSelection, store)
		if err != nil {
			return nil, err
		}
		e.selector = sel
	}

	e.logger.Info("labeling engine ready",
		zap.String("task", cfg.TaskName),
		zap.String("type", string(cfg.TaskType)),
		zap.Int("pool", store.Len()),
		zap.String("selection", string(cfg.Prompt.FewShotSelection)))
	return e, nil
}

// Config returns the task config the engine was built from.
func (e *Engine) Config() *TaskConfig { return e.cfg }

// Schema returns the derived output schema.
func (e *Engine) Schema() *OutputSchema { return e.schema }

// Store returns the few-shot example store.
func (e *Engine) Store() *ExampleStore { return e.store }

// ParseResponse parses and validates one raw model response against the
// task's output schema.
func (e *Engine) ParseResponse(raw string) *ParsedOutput {
	out := ParseOutput(raw, e.schema)
	if out.Status != StatusValid {
		e.logger.Debug("response parsed with violations",
			zap.String("task", e.cfg.TaskName),
			zap.String("status", out.Status.String()),
			zap.Int("violations", len(out.Violations)))
	}
	return out
}
