package classifier

import (
	"strings"
)

// Context types, ordered by rule precedence.
const (
	StoryStart           = "story_start"
	Dialogue             = "dialogue"
	Action               = "action"
	Description          = "description"
	CharacterDevelopment = "character_development"
	Continuation         = "continuation"
)

const windowRunes = 20

var (
	actionWords      = []string{"ran", "jumped", "fought", "moved", "walked"}
	descriptionWords = []string{"room", "place", "looked", "saw", "appeared"}
	characterWords   = []string{"felt", "thought", "remembered", "realized"}
)

// Result describes what kind of writing surrounds the cursor.
type Result struct {
	Type            string  `json:"type"`
	Confidence      float64 `json:"confidence"`
	NeedsSuggestion bool    `json:"needs_suggestion"`
}

// Classify inspects the text before cursor. A negative cursor means the end
// of the text; out-of-range values are clamped. Cursor counts runes.
func Classify(text string, cursor int) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Type: StoryStart, NeedsSuggestion: true}
	}

	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		cursor = len(runes)
	}
	before := string(runes[:cursor])

	start := cursor - windowRunes
	if start < 0 {
		start = 0
	}
	window := strings.ToLower(string(runes[start:cursor]))

	switch {
	case strings.Count(before, `"`)%2 == 1 && strings.Contains(window, `"`):
		return Result{Type: Dialogue, Confidence: 0.9}
	case containsAny(window, actionWords):
		return Result{Type: Action, Confidence: 0.85}
	case containsAny(window, descriptionWords):
		return Result{Type: Description, Confidence: 0.8}
	case containsAny(window, characterWords):
		return Result{Type: CharacterDevelopment, Confidence: 0.85}
	default:
		return Result{Type: Continuation, Confidence: 0.8}
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
