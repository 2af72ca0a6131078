package backfill

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/copilot"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// Config holds the import command configuration.
type Config struct {
	Dir         string
	OwnerID     uuid.UUID
	DefaultKind models.DocumentKind
	StatePath   string
	DryRun      bool
	SingleFile  string // import a single file only
}

// DocumentCreator stores a document and embeds it.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, in copilot.NewDocument) (*copilot.IngestedDocument, error)
}

// Summary reports the outcome of one run.
type Summary struct {
	Discovered        int      `json:"files_discovered"`
	Skipped           int      `json:"files_skipped"`
	DocumentsCreated  int      `json:"documents_created"`
	EmbeddingsCreated int      `json:"embeddings_created"`
	DegradedChunks    int      `json:"degraded_chunks"`
	NotIndexed        []string `json:"not_indexed"` // document ids to re-run with scribe ingest
	Errors            []string `json:"errors"`
	DryRun            bool     `json:"dry_run"`
}

// Runner imports a directory of manuscripts as documents.
type Runner struct {
	cfg     Config
	creator DocumentCreator
	logger  *slog.Logger
}

// NewRunner creates an import runner.
func NewRunner(cfg Config, creator DocumentCreator, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, creator: creator, logger: logger}
}

// Run imports every file not already recorded in the state file. Per-file
// failures are recorded and do not stop the run. Dry runs parse files but
// neither create documents nor touch the state file.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{DryRun: r.cfg.DryRun, NotIndexed: []string{}, Errors: []string{}}

	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return sum, fmt.Errorf("load state: %w", err)
	}

	files, err := r.discoverFiles()
	if err != nil {
		return sum, fmt.Errorf("discover files: %w", err)
	}
	sum.Discovered = len(files)
	r.logger.Info("files discovered", "count", len(files), "dir", r.cfg.Dir)

	var pending []string
	for _, path := range files {
		if state.IsProcessed(path) {
			sum.Skipped++
			continue
		}
		pending = append(pending, path)
	}
	state.FilesRemaining = len(pending)

	for _, path := range pending {
		if err := ctx.Err(); err != nil {
			r.save(state)
			return sum, err
		}

		m, err := r.readManuscript(path)
		if err != nil {
			r.fail(&sum, state, fmt.Sprintf("parse %s: %v", path, err))
			continue
		}
		if m.Body == "" {
			r.logger.Warn("skipping empty manuscript", "path", path)
			sum.Skipped++
			continue
		}

		if r.cfg.DryRun {
			r.logger.Info("would import", "path", path, "title", m.Title, "kind", m.Kind)
			sum.DocumentsCreated++
			continue
		}

		res, err := r.creator.CreateDocument(ctx, copilot.NewDocument{
			OwnerID: r.cfg.OwnerID,
			Title:   m.Title,
			Kind:    m.Kind,
			Body:    m.Body,
		})
		if err != nil {
			r.fail(&sum, state, fmt.Sprintf("create %s: %v", path, err))
			continue
		}

		sum.DocumentsCreated++
		sum.EmbeddingsCreated += res.Embedding.Inserted
		sum.DegradedChunks += res.Embedding.Degraded
		state.DocumentsCreated++
		state.EmbeddingsCreated += res.Embedding.Inserted
		state.DegradedChunks += res.Embedding.Degraded
		state.MarkProcessed(path)
		state.FilesRemaining--
		r.save(state)

		if !res.Embedding.Stored {
			r.logger.Warn("manuscript imported without embeddings",
				"path", path,
				"document_id", res.Document.ID,
				"error", res.Embedding.Error,
			)
			sum.NotIndexed = append(sum.NotIndexed, res.Document.ID.String())
			continue
		}
		r.logger.Info("manuscript imported",
			"path", path,
			"document_id", res.Document.ID,
			"kind", m.Kind,
			"embeddings", res.Embedding.Inserted,
		)
	}

	r.save(state)
	r.logger.Info("import complete",
		"documents", sum.DocumentsCreated,
		"embeddings", sum.EmbeddingsCreated,
		"errors", len(sum.Errors),
		"dry_run", r.cfg.DryRun,
	)
	return sum, nil
}

func (r *Runner) readManuscript(path string) (Manuscript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manuscript{}, err
	}
	return ParseManuscript(path, data, r.cfg.DefaultKind)
}

func (r *Runner) fail(sum *Summary, state *ImportState, msg string) {
	r.logger.Warn("import failed", "error", msg)
	sum.Errors = append(sum.Errors, msg)
	state.AddError(msg)
}

func (r *Runner) save(state *ImportState) {
	if r.cfg.DryRun {
		return
	}
	if err := state.Save(); err != nil {
		r.logger.Warn("failed to save import state", "error", err)
	}
}

// discoverFiles returns the .md and .txt files under Dir in lexical order.
func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		return []string{r.cfg.SingleFile}, nil
	}

	var files []string
	err := filepath.WalkDir(r.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.cfg.Dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown", ".txt":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
