package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// CreateUser inserts a user. Email must be unique.
func (s *Store) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	u := models.User{ID: uuid.New(), Name: name, Email: email}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at`,
		u.ID, u.Name, u.Email,
	).Scan(&u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// GetUser returns models.ErrNotFound when no user has the id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
