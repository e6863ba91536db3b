package labelweaver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ModelCaller invokes the labeling model. Injected; this engine never
// constructs a provider client. The descriptor is the task's model
// config, passed through untouched.
type ModelCaller interface {
	Call(ctx context.Context, prompt string, model ModelConfig) (string, error)
}

// ModelCallerFunc adapts a function to the ModelCaller interface.
type ModelCallerFunc func(ctx context.Context, prompt string, model ModelConfig) (string, error)

// Call implements ModelCaller.
func (f ModelCallerFunc) Call(ctx context.Context, prompt string, model ModelConfig) (string, error) {
	return f(ctx, prompt, model)
}

// LabelResult is the outcome for one record. Err is set when prompt
// assembly or the model call failed; Output is set otherwise.
type LabelResult struct {
	ID     string // run-scoped result id
	Record Record
	Prompt string
	Output *ParsedOutput
	Err    error
}

// Run labels a batch of records: per record it assembles a prompt,
// invokes the caller, and parses the response. Records are independent,
// so the batch fans out over a bounded worker group; a failed record is
// recorded in its result and never aborts the batch. Run returns an
// error only on context cancellation or a template error, both of which
// doom every remaining record anyway. workers <= 0 runs serially.
func (e *Engine) Run(ctx context.Context, records []Record, caller ModelCaller, workers int) ([]LabelResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]LabelResult, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, record := range records {
		i, record := i, record
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.labelOne(ctx, record, caller)
			// A template error means the task definition itself is broken;
			// every record would fail identically, so stop the batch.
			var terr *TemplateError
			if errors.As(results[i].Err, &terr) {
				return terr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	invalid := 0
	for _, r := range results {
		if r.Err != nil || (r.Output != nil && r.Output.Status == StatusInvalid) {
			invalid++
		}
	}
	e.logger.Info("batch labeled",
		zap.String("task", e.cfg.TaskName),
		zap.Int("records", len(records)),
		zap.Int("invalid", invalid))
	return results, nil
}

func (e *Engine) labelOne(ctx context.Context, record Record, caller ModelCaller) LabelResult {
	res := LabelResult{ID: uuid.NewString(), Record: record}

	prompt, err := e.BuildPrompt(ctx, record)
	if err != nil {
		res.Err = err
		return res
	}
	res.Prompt = prompt

	raw, err := caller.Call(ctx, prompt, e.cfg.Model)
	if err != nil {
		res.Err = err
		return res
	}
	res.Output = e.ParseResponse(raw)
	return res
}
