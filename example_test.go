package labelweaver

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	records []Record
	err     error
	gotRef  string
}

func (l *stubLoader) LoadExamples(_ context.Context, ref string) ([]Record, error) {
	l.gotRef = ref
	return l.records, l.err
}

func Test_ExampleStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should materialize inline examples in order", func(t *testing.T) {
		cfg := classificationConfig(SelectionFixed, 2)
		store, err := NewExampleStore(ctx, cfg, nil)
		require.NoError(t, err)
		require.Equal(t, 3, store.Len())
		assert.Equal(t, "alpha", store.Examples()[0].Fields["text"])
		assert.NotEmpty(t, store.Examples()[0].ID)
	})

	t.Run("should resolve an external reference through the loader", func(t *testing.T) {
		cfg := classificationConfig(SelectionFixed, 2)
		cfg.Prompt.FewShotExamples = FewShotSource{Ref: "pool.csv"}
		loader := &stubLoader{records: []Record{{"text": "x", "label": "a"}}}

		store, err := NewExampleStore(ctx, cfg, loader)
		require.NoError(t, err)
		assert.Equal(t, "pool.csv", loader.gotRef)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("should reject a reference without a loader", func(t *testing.T) {
		cfg := classificationConfig(SelectionFixed, 2)
		cfg.Prompt.FewShotExamples = FewShotSource{Ref: "pool.csv"}
		_, err := NewExampleStore(ctx, cfg, nil)
		require.Error(t, err)
		_, ok := err.(*SchemaConfigError)
		assert.True(t, ok, "expected *SchemaConfigError, got %T", err)
	})

	t.Run("should wrap loader failures", func(t *testing.T) {
		cfg := classificationConfig(SelectionFixed, 2)
		cfg.Prompt.FewShotExamples = FewShotSource{Ref: "pool.csv"}
		loader := &stubLoader{err: fmt.Errorf("boom")}
		_, err := NewExampleStore(ctx, cfg, loader)
		require.ErrorContains(t, err, "pool.csv")
	})

	t.Run("should copy records so later mutation cannot reach the pool", func(t *testing.T) {
		cfg := classificationConfig(SelectionFixed, 2)
		cfg.Prompt.FewShotExamples.Inline[0]["text"] = "alpha"
		store, err := NewExampleStore(ctx, cfg, nil)
		require.NoError(t, err)
		cfg.Prompt.FewShotExamples.Inline[0]["text"] = "mutated"
		assert.Equal(t, "alpha", store.Examples()[0].Fields["text"])
	})
}

func Test_ExampleStore_Embeddings(t *testing.T) {
	ctx := context.Background()

	t.Run("should mask the answer out of the embedded text", func(t *testing.T) {
		var embedded []string
		emb := &stubEmbedder{fn: func(text string) []float32 {
			embedded = append(embedded, text)
			return []float32{1}
		}}
		cfg := classificationConfig(SelectionSemanticSimilarity, 1)
		store, err := NewExampleStore(ctx, cfg, nil, WithStoreEmbedder(emb))
		require.NoError(t, err)

		_, err = store.EmbeddingOf(ctx, store.Examples()[0])
		require.NoError(t, err)
		require.Len(t, embedded, 1)
		assert.Equal(t, "Input: alpha\nLabel: ", embedded[0])
	})

	t.Run("should embed a query with the same masking", func(t *testing.T) {
		var embedded []string
		emb := &stubEmbedder{fn: func(text string) []float32 {
			embedded = append(embedded, text)
			return []float32{1}
		}}
		cfg := classificationConfig(SelectionSemanticSimilarity, 1)
		store, err := NewExampleStore(ctx, cfg, nil, WithStoreEmbedder(emb))
		require.NoError(t, err)

		_, err = store.QueryEmbedding(ctx, Record{"text": "fresh"})
		require.NoError(t, err)
		require.Len(t, embedded, 1)
		assert.Equal(t, "Input: fresh\nLabel: ", embedded[0])
	})

	t.Run("should compute each embedding once under concurrent access", func(t *testing.T) {
		emb := directionEmbedder()
		cfg := classificationConfig(SelectionSemanticSimilarity, 1)
		store, err := NewExampleStore(ctx, cfg, nil, WithStoreEmbedder(emb))
		require.NoError(t, err)
		ex := store.Examples()[1]

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				vec, err := store.EmbeddingOf(ctx, ex)
				assert.NoError(t, err)
				assert.Equal(t, []float32{0, 1}, vec)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, emb.callCount())
	})

	t.Run("should surface a template error from the embedding text", func(t *testing.T) {
		emb := directionEmbedder()
		cfg := classificationConfig(SelectionSemanticSimilarity, 1)
		cfg.Prompt.ExampleTemplate = "Input: {text} Extra: {nope}\nLabel: {label}"
		store, err := NewExampleStore(ctx, cfg, nil, WithStoreEmbedder(emb))
		require.NoError(t, err)

		_, err = store.EmbeddingOf(ctx, store.Examples()[0])
		require.Error(t, err)
		terr, ok := err.(*TemplateError)
		require.True(t, ok, "expected *TemplateError, got %T", err)
		assert.Equal(t, "nope", terr.Placeholder)
	})
}
