package labelweaver

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns deterministic vectors and counts Embed calls.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(text string) []float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(text), nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// directionEmbedder maps texts onto a 2d space by keyword.
func directionEmbedder() *stubEmbedder {
	return &stubEmbedder{fn: func(text string) []float32 {
		switch {
		case strings.Contains(text, "alpha"):
			return []float32{1, 0}
		case strings.Contains(text, "beta"):
			return []float32{0, 1}
		case strings.Contains(text, "gamma"):
			return []float32{0.7, 0.7}
		default:
			return []float32{0.1, 0.9} // close to beta
		}
	}}
}

func classificationConfig(policy SelectionPolicy, num int) *TaskConfig {
	cfg := &TaskConfig{
		TaskName: "SentimentTest",
		TaskType: TaskClassification,
		Prompt: PromptConfig{
			TaskGuidelines:  "Classify the input. Valid labels:\n{labels}",
			ExampleTemplate: "Input: {text}\nLabel: {label}",
			Labels:          []string{"a", "b"},
			FewShotExamples: FewShotSource{Inline: []Record{
				{"text": "alpha", "label": "a"},
				{"text": "beta", "label": "b"},
				{"text": "gamma", "label": "a"},
			}},
			FewShotSelection: policy,
			FewShotNum:       num,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func Test_FixedSelector(t *testing.T) {
	ctx := context.Background()
	cfg := classificationConfig(SelectionFixed, 2)
	store, err := NewExampleStore(ctx, cfg, nil)
	require.NoError(t, err)
	sel := &FixedSelector{Store: store}

	t.Run("should return the first k examples in pool order", func(t *testing.T) {
		got, err := sel.Select(ctx, Record{"text": "anything"}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "alpha", got[0].Fields["text"])
		assert.Equal(t, "beta", got[1].Fields["text"])
	})

	t.Run("should ignore query content", func(t *testing.T) {
		a, err := sel.Select(ctx, Record{"text": "one"}, 2)
		require.NoError(t, err)
		b, err := sel.Select(ctx, Record{"text": "completely different"}, 2)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("should return nothing for k = 0", func(t *testing.T) {
		got, err := sel.Select(ctx, Record{}, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should truncate to the pool when k exceeds it", func(t *testing.T) {
		got, err := sel.Select(ctx, Record{}, 10)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func Test_SemanticSelector(t *testing.T) {
	ctx := context.Background()

	newSemantic := func(t *testing.T) (*SemanticSelector, *stubEmbedder) {
		emb := directionEmbedder()
		cfg := classificationConfig(SelectionSemanticSimilarity, 1)
		store, err := NewExampleStore(ctx, cfg, nil, WithStoreEmbedder(emb))
		require.NoError(t, err)
		return &SemanticSelector{Store: store}, emb
	}

	t.Run("should return the nearest example for k = 1", func(t *testing.T) {
		sel, _ := newSemantic(t)
		got, err := sel.Select(ctx, Record{"text": "a query"}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "beta", got[0].Fields["text"])
	})

	t.Run("should rank the whole pool by descending similarity", func(t *testing.T) {
		sel, _ := newSemantic(t)
		got, err := sel.Select(ctx, Record{"text": "a query"}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "beta", got[0].Fields["text"])
		assert.Equal(t, "gamma", got[1].Fields["text"])
		assert.Equal(t, "alpha", got[2].Fields["text"])
	})

	t.Run("should embed each example once across queries", func(t *testing.T) {
		sel, emb := newSemantic(t)
		_, err := sel.Select(ctx, Record{"text": "first"}, 2)
		require.NoError(t, err)
		_, err = sel.Select(ctx, Record{"text": "second"}, 2)
		require.NoError(t, err)
		// 3 examples cached once, plus one query embedding per Select.
		assert.Equal(t, 5, emb.callCount())
	})

	t.Run("should break ties by pool order", func(t *testing.T) {
		emb := &stubEmbedder{fn: func(string) []float32 { return []float32{1, 0} }}
		cfg := classificationConfig(SelectionSemanticSimilarity, 2)
		store, err := NewExampleStore(ctx, cfg, nil, WithStoreEmbedder(emb))
		require.NoError(t, err)
		sel := &SemanticSelector{Store: store}

		got, err := sel.Select(ctx, Record{"text": "tie"}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "alpha", got[0].Fields["text"])
		assert.Equal(t, "beta", got[1].Fields["text"])
	})

	t.Run("should not mutate the pool", func(t *testing.T) {
		sel, _ := newSemantic(t)
		before := make([]string, 0, 3)
		for _, ex := range sel.Store.Examples() {
			before = append(before, ex.Fields["text"])
		}
		_, err := sel.Select(ctx, Record{"text": "a query"}, 3)
		require.NoError(t, err)
		after := make([]string, 0, 3)
		for _, ex := range sel.Store.Examples() {
			after = append(after, ex.Fields["text"])
		}
		assert.Equal(t, before, after)
	})

	t.Run("should fail without an embedder", func(t *testing.T) {
		cfg := classificationConfig(SelectionSemanticSimilarity, 1)
		store, err := NewExampleStore(ctx, cfg, nil)
		require.NoError(t, err)
		sel := &SemanticSelector{Store: store}
		_, err = sel.Select(ctx, Record{"text": "q"}, 1)
		require.Error(t, err)
		_, ok := err.(*SchemaConfigError)
		assert.True(t, ok, "expected *SchemaConfigError, got %T", err)
	})
}

func Test_CosineSimilarity(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-9)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	require.Error(t, err)

	got, err = CosineSimilarity([]float32{0, 0}, []float32{1, 2})
	require.NoError(t, err)
	assert.Zero(t, got)
}
