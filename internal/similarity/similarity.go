package similarity

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// Index stores one embedding per article and answers nearest-neighbour queries
type Index interface {
	Upsert(ctx context.Context, articleID string, embedding []float32) error
	Search(ctx context.Context, query []float32, k int) ([]domain.ArticleMatch, error)
	Delete(ctx context.Context, articleID string) error
}

// Cosine returns dot(a,b)/(|a||b|) in [-1, 1]. Vectors of different length or
// with zero norm have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past 1
	return math.Max(-1, math.Min(1, sim))
}

// MemoryIndex is an in-process Index with exact search
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryIndex creates an empty MemoryIndex
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string][]float32)}
}

// Upsert stores a copy of the embedding, replacing any previous one
func (m *MemoryIndex) Upsert(_ context.Context, articleID string, embedding []float32) error {
	v := make([]float32, len(embedding))
	copy(v, embedding)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[articleID] = v
	return nil
}

// Search returns the k most similar articles, most similar first. Ties are
// broken by article id so results are stable.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]domain.ArticleMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]domain.ArticleMatch, 0, len(m.vectors))
	for id, v := range m.vectors {
		matches = append(matches, domain.ArticleMatch{ArticleID: id, Similarity: Cosine(query, v)})
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ArticleID < matches[j].ArticleID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete drops an article's embedding
func (m *MemoryIndex) Delete(_ context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, articleID)
	return nil
}

// Len returns the number of indexed articles
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}
