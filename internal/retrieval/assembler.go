package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/classifier"
	"github.com/MikeSquared-Agency/scribe/internal/embedding"
	"github.com/MikeSquared-Agency/scribe/internal/llmjson"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/vectorstore"
)

const (
	NoContext = "No relevant context found in your documents."

	writingK      = 3
	intelligentK  = 5
	excerptRunes  = 200
	minQueryRunes = 20
)

type Embedder interface {
	Embed(ctx context.Context, text string) embedding.Vector
}

type Searcher interface {
	Search(ctx context.Context, q vectorstore.Query) []models.Match
}

// Assembler turns a prompt or a cursor position into retrieved context from
// the user's own documents.
type Assembler struct {
	embedder Embedder
	store    Searcher
	logger   *slog.Logger
}

func New(e Embedder, s Searcher, logger *slog.Logger) *Assembler {
	return &Assembler{embedder: e, store: s, logger: logger}
}

type Item struct {
	Title      string              `json:"title"`
	Kind       models.DocumentKind `json:"type"`
	Text       string              `json:"content"`
	Similarity float64             `json:"similarity"`
}

type IntelligentContext struct {
	Items          []Item            `json:"items"`
	Classification classifier.Result `json:"classification"`
	Query          string            `json:"query_used"`
}

// ForWriting embeds prompt verbatim and formats the top three matches.
func (a *Assembler) ForWriting(ctx context.Context, owner uuid.UUID, prompt string) string {
	items := a.search(ctx, owner, prompt, writingK)
	return FormatItems(items)
}

// Intelligent builds a query from the last two sentences before cursor,
// falling back to the whole text when those are too short, and classifies
// the writing at the cursor. A negative cursor means the end of text.
func (a *Assembler) Intelligent(ctx context.Context, owner uuid.UUID, text string, cursor int) IntelligentContext {
	query := BuildQuery(text, cursor)
	return IntelligentContext{
		Items:          a.search(ctx, owner, query, intelligentK),
		Classification: classifier.Classify(text, cursor),
		Query:          query,
	}
}

func (a *Assembler) search(ctx context.Context, owner uuid.UUID, query string, k int) []Item {
	items := []Item{}
	if strings.TrimSpace(query) == "" {
		return items
	}
	vec := a.embedder.Embed(ctx, query)
	if vec.Degraded {
		a.logger.Warn("query embedding degraded, skipping retrieval", "owner_id", owner)
		return items
	}
	for _, m := range a.store.Search(ctx, vectorstore.Query{Vector: vec.Values, OwnerID: owner, K: k}) {
		items = append(items, Item{
			Title:      m.Chunk.DocTitle,
			Kind:       m.Chunk.DocKind,
			Text:       m.Chunk.SourceText,
			Similarity: m.Similarity,
		})
	}
	return items
}

// BuildQuery returns the last two '.'-separated pieces of the text before
// cursor, or the whole text when that is shorter than 20 characters.
func BuildQuery(text string, cursor int) string {
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		cursor = len(runes)
	}
	pieces := strings.Split(string(runes[:cursor]), ".")
	if len(pieces) > 2 {
		pieces = pieces[len(pieces)-2:]
	}
	query := strings.TrimSpace(strings.Join(pieces, "."))
	if len([]rune(query)) < minQueryRunes {
		return strings.TrimSpace(text)
	}
	return query
}

// FormatItems renders items as "From '<title>' (<kind>): <excerpt>..." blocks.
func FormatItems(items []Item) string {
	if len(items) == 0 {
		return NoContext
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("From '%s' (%s): %s...", it.Title, it.Kind, llmjson.Truncate(it.Text, excerptRunes)))
	}
	return strings.Join(parts, "\n\n")
}
