package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

const (
	DefaultThreshold = 0.7
	DefaultK         = 5
)

// Query selects the k most similar non-degraded chunks owned by OwnerID
// whose cosine similarity is at least Threshold.
type Query struct {
	Vector    []float32
	OwnerID   uuid.UUID
	Threshold float64
	K         int
}

// Backend is a persistence layer for chunk vectors.
type Backend interface {
	// ReplaceDocument atomically swaps every chunk of documentID for chunks.
	ReplaceDocument(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) error
	Search(ctx context.Context, q Query) ([]models.Match, error)
	CountChunks(ctx context.Context, documentID uuid.UUID) (int, error)
}

// Store wraps a Backend with query defaults, timeouts and the search
// degrade mode: a failing search logs and returns no matches.
type Store struct {
	backend   Backend
	threshold float64
	timeout   time.Duration
	logger    *slog.Logger
}

func New(b Backend, threshold float64, timeout time.Duration, logger *slog.Logger) *Store {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{backend: b, threshold: threshold, timeout: timeout, logger: logger}
}

// Replace stores chunks for a document, all or nothing. It returns the
// number of chunks inserted, which is zero on error.
func (s *Store) Replace(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.backend.ReplaceDocument(ctx, documentID, chunks); err != nil {
		return 0, fmt.Errorf("replace chunks for %s: %w", documentID, err)
	}
	return len(chunks), nil
}

func (s *Store) Count(ctx context.Context, documentID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.CountChunks(ctx, documentID)
}

// Search never returns an error. Zero Threshold and K take the defaults.
func (s *Store) Search(ctx context.Context, q Query) []models.Match {
	if q.Threshold <= 0 {
		q.Threshold = s.threshold
	}
	if q.K <= 0 {
		q.K = DefaultK
	}
	if isZero(q.Vector) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	matches, err := s.backend.Search(ctx, q)
	if err != nil {
		s.logger.Warn("vector search failed, returning no matches",
			"owner_id", q.OwnerID,
			"error", err,
		)
		return nil
	}
	return matches
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
