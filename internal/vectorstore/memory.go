package vectorstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// Memory is an in-process Backend using brute-force cosine similarity.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	byDoc     map[uuid.UUID][]models.Chunk
}

func NewMemory(dimension int) *Memory {
	return &Memory{dimension: dimension, byDoc: make(map[uuid.UUID][]models.Chunk)}
}

func (m *Memory) ReplaceDocument(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) error {
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return errors.New("chunk belongs to a different document")
		}
		if m.dimension > 0 && len(c.Vector) != m.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]models.Chunk, len(chunks))
	copy(stored, chunks)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(stored) == 0 {
		delete(m.byDoc, documentID)
		return nil
	}
	m.byDoc[documentID] = stored
	return nil
}

func (m *Memory) CountChunks(_ context.Context, documentID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDoc[documentID]), nil
}

func (m *Memory) Search(ctx context.Context, q Query) ([]models.Match, error) {
	m.mu.RLock()
	var matches []models.Match
	for _, chunks := range m.byDoc {
		for _, c := range chunks {
			if c.OwnerID != q.OwnerID || c.Degraded {
				continue
			}
			sim := Cosine(c.Vector, q.Vector)
			if sim < q.Threshold {
				continue
			}
			matches = append(matches, models.Match{Chunk: c, Similarity: sim})
		}
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortMatches(matches)
	if q.K > 0 && len(matches) > q.K {
		matches = matches[:q.K]
	}
	return matches, nil
}

// SortMatches orders by similarity descending, then created_at, chunk
// index and id ascending so equal scores rank deterministically.
func SortMatches(matches []models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Chunk.CreatedAt.Equal(b.Chunk.CreatedAt) {
			return a.Chunk.CreatedAt.Before(b.Chunk.CreatedAt)
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.ID.String() < b.Chunk.ID.String()
	})
}
