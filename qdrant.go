package labelweaver

import (
	"context"
	"fmt"
	"sync"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// qdrantPayloadKey is the payload field holding the pool example ID.
const qdrantPayloadKey = "example_id"

// QdrantSelector is an index-backed Selector: instead of scanning every
// cached embedding, it asks a qdrant collection for the query's nearest
// neighbors and maps the hits back to pool examples through the
// example-ID payload. Populating the collection (one point per pool
// example, vector embedded with the same masking convention, payload
// example_id set) is an external concern; the selector only searches.
type QdrantSelector struct {
	Points     qdrant.PointsClient
	Collection string
	Store      *ExampleStore

	indexOnce sync.Once
	byID      map[string]Example
}

// Select implements Selector and is safe for concurrent use. The
// caller's context propagates into both the embedding call and the
// qdrant search.
func (s *QdrantSelector) Select(ctx context.Context, query Record, k int) ([]Example, error) {
	if k <= 0 {
		return nil, nil
	}
	// The pool is immutable after load, so the ID index is built once;
	// concurrent first calls must not both write the map.
	s.indexOnce.Do(func() {
		s.byID = make(map[string]Example, s.Store.Len())
		for _, ex := range s.Store.Examples() {
			s.byID[ex.ID] = ex
		}
	})

	queryVec, err := s.Store.QueryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	resp, err := s.Points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.Collection,
		Vector:         queryVec,
		Limit:          uint64(k),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search in %q: %w", s.Collection, err)
	}

	var out []Example
	for _, point := range resp.GetResult() {
		val, ok := point.GetPayload()[qdrantPayloadKey]
		if !ok {
			continue
		}
		if ex, ok := s.byID[val.GetStringValue()]; ok {
			out = append(out, ex)
		}
	}
	return out, nil
}
