package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/MikeSquared-Agency/scribe/internal/backfill"
	"github.com/MikeSquared-Agency/scribe/internal/copilot"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

func importCommand() *cobra.Command {
	var (
		userID, dir, file, kind, statePath string
		dryRun                             bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a folder of manuscripts as documents",
		Long: "Create and embed a document for every .md and .txt file under --dir. " +
			"YAML front matter may set title and type; otherwise the parent folder decides the type. " +
			"Progress is recorded in a state file so interrupted runs resume.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (dir == "") == (file == "") {
				return errors.New("exactly one of --dir or --file is required")
			}
			owner, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("parse user id: %w", err)
			}
			fallback := models.DocumentKind(kind)
			if !fallback.Valid() {
				return fmt.Errorf("unknown document type %q", kind)
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

			if _, err := p.db.GetUser(ctx, owner); err != nil {
				return fmt.Errorf("user %s: %w", owner, err)
			}

			svc := copilot.New(copilot.Deps{
				Users:     p.db,
				Documents: p.db,
				Ingester:  p.processor(cfg, nil),
			}, copilot.DefaultDomains, cfg.GenerationTimeout, slog.Default())

			runner := backfill.NewRunner(backfill.Config{
				Dir:         dir,
				SingleFile:  file,
				OwnerID:     owner,
				DefaultKind: fallback,
				StatePath:   statePath,
				DryRun:      dryRun,
			}, svc, slog.Default())

			sum, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
			if len(sum.Errors) > 0 {
				return fmt.Errorf("%d files failed to import", len(sum.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	cmd.Flags().StringVar(&dir, "dir", "", "directory to scan recursively")
	cmd.Flags().StringVar(&file, "file", "", "import a single file")
	cmd.Flags().StringVar(&kind, "type", string(models.KindStory), "document type when neither front matter nor folder sets one")
	cmd.Flags().StringVar(&statePath, "state", "", "state file path (default ~/.scribe/import-state.json)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse files without creating documents")
	cmd.MarkFlagRequired("user")
	return cmd
}
