package continuity

import (
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/models"
)

type Character struct {
	Name       string            `json:"name"`
	Traits     []string          `json:"traits,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Location struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type TimelineEvent struct {
	Description   string `json:"description"`
	TimeReference string `json:"time_reference,omitempty"`
	Chapter       string `json:"chapter,omitempty"`
}

// Plot thread statuses.
const (
	ThreadIntroduced = "introduced"
	ThreadOngoing    = "ongoing"
	ThreadResolved   = "resolved"
)

type PlotThread struct {
	Description string `json:"description"`
	Status      string `json:"status"`
}

type WorldRule struct {
	Rule string `json:"rule"`
}

type Relationship struct {
	A    string `json:"character_a"`
	B    string `json:"character_b"`
	Kind string `json:"relationship"`
}

// Extraction is the set of story elements found in one chapter.
type Extraction struct {
	Characters     []Character     `json:"characters"`
	Locations      []Location      `json:"locations"`
	TimelineEvents []TimelineEvent `json:"timeline_events"`
	PlotThreads    []PlotThread    `json:"plot_threads"`
	WorldRules     []WorldRule     `json:"world_rules"`
	Relationships  []Relationship  `json:"relationships"`
}

// Empty reports whether nothing was extracted.
func (e Extraction) Empty() bool {
	return len(e.Characters) == 0 && len(e.Locations) == 0 && len(e.TimelineEvents) == 0 &&
		len(e.PlotThreads) == 0 && len(e.WorldRules) == 0 && len(e.Relationships) == 0
}

// Issue types.
const (
	IssueCharacterConsistency = "character_consistency"
	IssueTimeline             = "timeline"
	IssuePlotContinuity       = "plot_continuity"
	IssueWorldBuilding        = "world_building"
)

// Severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Finding is a single continuity problem reported for a chapter.
type Finding struct {
	DocumentID   string `json:"document_id"`
	ChapterLabel string `json:"chapter_label"`
	IssueType    string `json:"type"`
	Severity     string `json:"severity"`
	Description  string `json:"message"`
	Suggestion   string `json:"suggestion"`
}

type Analysis struct {
	IssuesFound       []Finding `json:"issues_found"`
	PositiveElements  []string  `json:"positive_elements"`
	OverallAssessment string    `json:"overall_assessment"`
	Valid             bool      `json:"valid"`
}

// Summary aggregates the accumulated story model of a document.
type Summary struct {
	DocumentID         string   `json:"document_id"`
	Chapters           int      `json:"chapters"`
	Characters         []string `json:"characters"`
	Locations          []string `json:"locations"`
	CharactersCount    int      `json:"characters_count"`
	LocationsCount     int      `json:"locations_count"`
	TimelineEvents     int      `json:"timeline_events"`
	PlotThreads        int      `json:"plot_threads"`
	ActivePlotThreads  int      `json:"active_plot_threads"`
	ActiveThreads      []string `json:"active_threads"`
	WorldRules         int      `json:"world_rules"`
	RelationshipsCount int      `json:"relationships_count"`
}

type HistoryEntry struct {
	Seq          int64             `json:"seq"`
	ChapterLabel string            `json:"chapter_label"`
	Status       models.TaskStatus `json:"status"`
	CheckedAt    time.Time         `json:"checked_at"`
	Analysis     Analysis          `json:"analysis"`
}

type TimelineEntry struct {
	Seq          int64           `json:"seq"`
	ChapterLabel string          `json:"chapter_label"`
	RecordedAt   time.Time       `json:"recorded_at"`
	Events       []TimelineEvent `json:"events"`
}

type NewElements struct {
	Characters  []string `json:"characters"`
	PlotThreads []string `json:"plot_threads"`
	Locations   []string `json:"locations"`
}

// Report is the result of a full continuity check of one chapter.
type Report struct {
	DocumentID        string      `json:"document_id"`
	ChapterLabel      string      `json:"chapter_label"`
	AgentStatus       string      `json:"agent_status"`
	StorySummary      Summary     `json:"story_summary"`
	NewElementsFound  NewElements `json:"new_elements_found"`
	ContinuityIssues  []Finding   `json:"continuity_issues"`
	PositiveElements  []string    `json:"positive_elements"`
	OverallAssessment string      `json:"overall_assessment"`
	Recommendations   []string    `json:"recommendations"`
}

// HighSeverity returns the findings marked high.
func (r *Report) HighSeverity() []Finding {
	var out []Finding
	for _, f := range r.ContinuityIssues {
		if f.Severity == SeverityHigh {
			out = append(out, f)
		}
	}
	return out
}

// storyContext is the payload of a story_context task.
type storyContext struct {
	ChapterLabel string `json:"chapter_label"`
	Content      string `json:"content"`
}

// failure is the output of a failed extraction or analysis task.
type failure struct {
	Raw string `json:"raw,omitempty"`
}
