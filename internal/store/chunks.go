package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/vectorstore"
)

var _ vectorstore.Backend = (*Store)(nil)

// ReplaceDocument deletes a document's chunks and inserts the new set in one
// transaction.
func (s *Store) ReplaceDocument(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("chunk %d belongs to document %s", c.Index, c.DocumentID)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, owner_id, chunk_index, embedding, source_text, doc_title, doc_kind, text_length, degraded, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
			c.ID, c.DocumentID, c.OwnerID, c.Index, pgvector.NewVector(c.Vector),
			c.SourceText, c.DocTitle, string(c.DocKind), c.TextLength, c.Degraded,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Search ranks the owner's non-degraded chunks by cosine similarity using
// pgvector's <=> cosine distance operator.
func (s *Store) Search(ctx context.Context, q vectorstore.Query) ([]models.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, owner_id, chunk_index, source_text, doc_title, doc_kind, text_length, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE owner_id = $2 AND NOT degraded AND 1 - (embedding <=> $1) >= $3
		ORDER BY similarity DESC, created_at, chunk_index, id
		LIMIT $4`,
		pgvector.NewVector(q.Vector), q.OwnerID, q.Threshold, q.K,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		var kind string
		c := &m.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Index, &c.SourceText, &c.DocTitle, &kind, &c.TextLength, &c.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.DocKind = models.DocumentKind(kind)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
