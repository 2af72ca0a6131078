package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// CreateDocument inserts doc, assigning its id and timestamps.
func (s *Store) CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	doc.ID = uuid.New()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, owner_id, title, kind, body_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at`,
		doc.ID, doc.OwnerID, doc.Title, string(doc.Kind), doc.Body,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return &doc, nil
}

// UpdateDocument rewrites title, kind and body of an existing document.
func (s *Store) UpdateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	err := s.pool.QueryRow(ctx, `
		UPDATE documents SET title = $1, kind = $2, body_text = $3, updated_at = now()
		WHERE id = $4
		RETURNING owner_id, created_at, updated_at`,
		doc.Title, string(doc.Kind), doc.Body, doc.ID,
	).Scan(&doc.OwnerID, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", doc.ID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return &doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	var kind string
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, kind, body_text, created_at, updated_at
		FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.OwnerID, &d.Title, &kind, &d.Body, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.Kind = models.DocumentKind(kind)
	return &d, nil
}

// ListDocuments returns the owner's documents oldest first.
func (s *Store) ListDocuments(ctx context.Context, ownerID uuid.UUID) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, kind, body_text, created_at, updated_at
		FROM documents WHERE owner_id = $1
		ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var kind string
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &kind, &d.Body, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Kind = models.DocumentKind(kind)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
