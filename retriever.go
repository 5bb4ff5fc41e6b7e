package docquiz

import (
	"context"
	"math"
	"sort"
	"strings"
)

// retrieveFloor is the minimum row count RetrieveTopK returns when the
// source has that many; a smaller requested k is raised to it.
const retrieveFloor = 30

// Retriever reads user-scoped chunks from the store. It performs no
// writes and needs no locking; each call issues one read (or serves it
// from the TTL cache when one is configured).
type Retriever struct {
	store Store
	cache *ChunkCache
}

// NewRetriever creates a retriever. cache may be nil.
func NewRetriever(store Store, cache *ChunkCache) *Retriever {
	return &Retriever{store: store, cache: cache}
}

// RetrieveTopK returns at most max(k, 30) chunks owned by userID,
// restricted to docIDs when non-empty, ordered by content length
// descending with documentID then page as tie-breaks.
//
// The length-descending ordering is a stopgap, not semantic relevance;
// RetrieveNearest is the intended ranking once a query vector exists.
func (r *Retriever) RetrieveTopK(ctx context.Context, userID string, docIDs []string, k int) ([]Chunk, error) {
	if userID == "" {
		return []Chunk{}, nil
	}

	chunks, err := r.userChunks(ctx, userID, docIDs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if len(chunks[i].Content) != len(chunks[j].Content) {
			return len(chunks[i].Content) > len(chunks[j].Content)
		}
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].Page < chunks[j].Page
	})

	limit := k
	if limit < retrieveFloor {
		limit = retrieveFloor
	}
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

// RetrieveNearest ranks the user's chunks by cosine similarity against
// a query vector, skipping chunks that were never embedded. Ties break
// by documentID then page for determinism.
func (r *Retriever) RetrieveNearest(ctx context.Context, userID string, docIDs []string, query []float32, k int) ([]Chunk, error) {
	if userID == "" {
		return []Chunk{}, nil
	}
	if len(query) == 0 {
		return nil, Validationf("empty query vector")
	}

	chunks, err := r.userChunks(ctx, userID, docIDs)
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk Chunk
		sim   float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(query) {
			continue
		}
		ranked = append(ranked, scored{chunk: chunk, sim: cosineSimilarity(query, chunk.Embedding)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		if ranked[i].chunk.DocumentID != ranked[j].chunk.DocumentID {
			return ranked[i].chunk.DocumentID < ranked[j].chunk.DocumentID
		}
		return ranked[i].chunk.Page < ranked[j].chunk.Page
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Chunk, len(ranked))
	for i, s := range ranked {
		out[i] = s.chunk
	}
	return out, nil
}

func (r *Retriever) userChunks(ctx context.Context, userID string, docIDs []string) ([]Chunk, error) {
	if r.cache != nil {
		key := chunkCacheKey(userID, docIDs)
		if cached, ok := r.cache.Get(key); ok {
			VerboseLog("retriever cache hit for %s", key)
			return append([]Chunk(nil), cached...), nil
		}
		chunks, err := r.store.GetUserChunks(ctx, userID, docIDs)
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, chunks)
		return append([]Chunk(nil), chunks...), nil
	}
	return r.store.GetUserChunks(ctx, userID, docIDs)
}

func chunkCacheKey(userID string, docIDs []string) string {
	if len(docIDs) == 0 {
		return userID + "::*"
	}
	sorted := append([]string(nil), docIDs...)
	sort.Strings(sorted)
	return userID + "::" + strings.Join(sorted, ",")
}

// cosineSimilarity returns the cosine of the angle between a and b, or
// 0 when either has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
