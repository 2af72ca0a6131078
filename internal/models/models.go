package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrGeneration   = errors.New("generation failed")
)

// DocumentKind is the category a user files a document under.
type DocumentKind string

const (
	KindPlot      DocumentKind = "plot"
	KindCharacter DocumentKind = "character"
	KindBookIdea  DocumentKind = "book_idea"
	KindStory     DocumentKind = "story"
)

// Valid reports whether k is one of the known document kinds.
func (k DocumentKind) Valid() bool {
	switch k {
	case KindPlot, KindCharacter, KindBookIdea, KindStory:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Document struct {
	ID        uuid.UUID    `json:"id"`
	OwnerID   uuid.UUID    `json:"owner_id"`
	Title     string       `json:"title"`
	Kind      DocumentKind `json:"kind"`
	Body      string       `json:"body_text"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Chunk is one embedded window of a document. Title and kind are
// denormalized so search results can be rendered without a join.
type Chunk struct {
	ID         uuid.UUID    `json:"id"`
	DocumentID uuid.UUID    `json:"document_id"`
	OwnerID    uuid.UUID    `json:"owner_id"`
	Index      int          `json:"chunk_index"`
	Vector     []float32    `json:"-"`
	SourceText string       `json:"source_text"`
	DocTitle   string       `json:"doc_title"`
	DocKind    DocumentKind `json:"doc_kind"`
	TextLength int          `json:"text_length"`
	Degraded   bool         `json:"degraded"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Match is a search hit with its cosine similarity to the query.
type Match struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

// TaskType names an entry in a document's continuity log.
type TaskType string

const (
	TaskStoryContext      TaskType = "story_context"
	TaskElementExtraction TaskType = "element_extraction"
	TaskContinuityCheck   TaskType = "plot_continuity_check"
)

type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AgentTask is one append-only entry in a document's continuity log. Seq and
// CreatedAt are assigned by the log, never by the caller.
type AgentTask struct {
	ID         uuid.UUID       `json:"id"`
	DocumentID string          `json:"document_id"`
	Seq        int64           `json:"seq"`
	Type       TaskType        `json:"task_type"`
	Status     TaskStatus      `json:"status"`
	Label      string          `json:"chapter_label,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
