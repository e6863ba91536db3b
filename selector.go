package labelweaver

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Selector picks the few-shot examples for one query. Implementations
// never mutate the pool, and an index-backed implementation can replace
// the in-memory scan without changing caller semantics.
type Selector interface {
	// Select returns up to k examples for the query, most relevant first.
	// k larger than the pool is a documented truncation, not an error.
	Select(ctx context.Context, query Record, k int) ([]Example, error)
}

// FixedSelector returns the first k examples in pool order, regardless
// of query content. Deterministic and order-preserving.
type FixedSelector struct {
	Store *ExampleStore
}

// Select implements Selector.
func (s *FixedSelector) Select(_ context.Context, _ Record, k int) ([]Example, error) {
	pool := s.Store.Examples()
	if k <= 0 {
		return nil, nil
	}
	if k > len(pool) {
		k = len(pool)
	}
	out := make([]Example, k)
	copy(out, pool[:k])
	return out, nil
}

// SemanticSelector ranks the pool by cosine similarity between the query
// embedding and each cached example embedding: an exact O(pool) scan,
// top-k by similarity descending, ties broken by pool order.
type SemanticSelector struct {
	Store *ExampleStore
}

// Select implements Selector.
func (s *SemanticSelector) Select(ctx context.Context, query Record, k int) ([]Example, error) {
	if k <= 0 {
		return nil, nil
	}
	pool := s.Store.Examples()
	if len(pool) == 0 {
		return nil, nil
	}

	queryVec, err := s.Store.QueryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	type scored struct {
		ex    Example
		score float64
	}
	ranked := make([]scored, 0, len(pool))
	for _, ex := range pool {
		vec, err := s.Store.EmbeddingOf(ctx, ex)
		if err != nil {
			return nil, err
		}
		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, scored{ex: ex, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Example, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].ex
	}
	return out, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1; a zero-magnitude vector scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// selectorForPolicy maps the configured policy to an implementation.
func selectorForPolicy(policy SelectionPolicy, store *ExampleStore) (Selector, error) {
	switch policy {
	case SelectionFixed:
		return &FixedSelector{Store: store}, nil
	case SelectionSemanticSimilarity:
		return &SemanticSelector{Store: store}, nil
	default:
		return nil, NewSchemaConfigError("prompt.few_shot_selection",
			fmt.Sprintf("unknown selection policy %q", policy))
	}
}
