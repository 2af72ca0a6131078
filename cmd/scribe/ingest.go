package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

func ingestCommand() *cobra.Command {
	var documentID, userID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Regenerate embeddings for stored documents",
		Long:  "Re-chunk and re-embed one document, or every document a user owns, replacing their stored vectors.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (documentID == "") == (userID == "") {
				return errors.New("exactly one of --document or --user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			docs, err := selectDocuments(ctx, p, documentID, userID)
			if err != nil {
				return err
			}

			proc := p.processor(cfg, nil)
			enc := json.NewEncoder(cmd.OutOrStdout())
			var failed int
			for _, doc := range docs {
				res, err := proc.Ingest(ctx, doc)
				if err != nil {
					slog.Error("ingest failed", "document_id", doc.ID, "error", err)
					failed++
					continue
				}
				enc.Encode(res)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed to ingest", failed, len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document id to re-embed")
	cmd.Flags().StringVar(&userID, "user", "", "re-embed every document owned by this user id")
	return cmd
}

func selectDocuments(ctx context.Context, p *pipeline, documentID, userID string) ([]models.Document, error) {
	if documentID != "" {
		id, err := uuid.Parse(documentID)
		if err != nil {
			return nil, fmt.Errorf("parse document id: %w", err)
		}
		doc, err := p.db.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		return []models.Document{*doc}, nil
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return p.db.ListDocuments(ctx, id)
}
