package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/embedding"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

const (
	SubjectDocumentChanged  = "scribe.document.changed"
	SubjectDocumentEmbedded = "scribe.document.embedded"
)

type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

type BatchEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) []embedding.Vector
}

type ChunkWriter interface {
	Replace(ctx context.Context, documentID uuid.UUID, chunks []models.Chunk) (int, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Processor runs the write path: chunk a document, embed every chunk and
// replace the document's stored vectors.
type Processor struct {
	docs      DocumentStore
	embedder  BatchEmbedder
	chunks    ChunkWriter
	publisher Publisher
	size      int
	overlap   int
	logger    *slog.Logger
}

// New builds a Processor. publisher may be nil.
func New(docs DocumentStore, e BatchEmbedder, w ChunkWriter, publisher Publisher, size, overlap int, logger *slog.Logger) *Processor {
	return &Processor{
		docs:      docs,
		embedder:  e,
		chunks:    w,
		publisher: publisher,
		size:      size,
		overlap:   overlap,
		logger:    logger,
	}
}

// Result reports what an ingest stored. Degraded counts chunks stored with
// a zero vector because embedding failed; they are excluded from search.
// Stored is false when the chunk replace failed and nothing was indexed.
type Result struct {
	DocumentID uuid.UUID `json:"document_id"`
	Chunks     int       `json:"chunks"`
	Inserted   int       `json:"embeddings_created"`
	Degraded   int       `json:"degraded"`
	Stored     bool      `json:"stored"`
	Error      string    `json:"embedding_error,omitempty"`
}

// Ingest fully regenerates the embeddings of doc.
func (p *Processor) Ingest(ctx context.Context, doc models.Document) (Result, error) {
	texts := chunker.Chunk(doc.Body, p.size, p.overlap)
	vectors := p.embedder.EmbedAll(ctx, texts)

	now := time.Now().UTC()
	res := Result{DocumentID: doc.ID, Chunks: len(texts)}
	records := make([]models.Chunk, len(texts))
	for i, text := range texts {
		records[i] = models.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			Index:      i,
			Vector:     vectors[i].Values,
			SourceText: text,
			DocTitle:   doc.Title,
			DocKind:    doc.Kind,
			TextLength: len(text),
			Degraded:   vectors[i].Degraded,
			CreatedAt:  now,
		}
		if vectors[i].Degraded {
			res.Degraded++
		}
	}

	n, err := p.chunks.Replace(ctx, doc.ID, records)
	if err != nil {
		err = fmt.Errorf("store embeddings: %w", err)
		return Result{DocumentID: doc.ID, Chunks: len(texts), Error: err.Error()}, err
	}
	res.Inserted = n
	res.Stored = true

	p.logger.Info("document embedded",
		"document_id", doc.ID,
		"chunks", res.Chunks,
		"degraded", res.Degraded,
	)

	if p.publisher != nil {
		if err := p.publisher.Publish(SubjectDocumentEmbedded, res); err != nil {
			p.logger.Warn("failed to publish document embedded", "document_id", doc.ID, "error", err)
		}
	}
	return res, nil
}

// DocumentChangedEvent asks for a document to be re-embedded.
type DocumentChangedEvent struct {
	DocumentID string `json:"document_id"`
}

// HandleDocumentChanged is the NATS handler for scribe.document.changed.
func (p *Processor) HandleDocumentChanged(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var evt DocumentChangedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse document event", "subject", subject, "error", err)
		return
	}
	id, err := uuid.Parse(evt.DocumentID)
	if err != nil {
		p.logger.Error("invalid document id", "document_id", evt.DocumentID, "error", err)
		return
	}

	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		p.logger.Error("failed to load document", "document_id", id, "error", err)
		return
	}
	if _, err := p.Ingest(ctx, *doc); err != nil {
		p.logger.Error("re-embed failed", "document_id", id, "error", err)
	}
}
