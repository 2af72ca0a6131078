package copilot

import (
	"fmt"

	"github.com/MikeSquared-Agency/scribe/internal/classifier"
)

const (
	assistMaxTokens   = 1024
	suggestMaxTokens  = 400
	analysisMaxTokens = 1500
	feedbackMaxTokens = 1500

	suggestionCount = 3
)

var suggestionGuidance = map[string]string{
	classifier.StoryStart:           "Offer three distinct opening lines that hook the reader.",
	classifier.Dialogue:             "Continue the dialogue in the speaker's voice and keep it natural.",
	classifier.Action:               "Continue the action with vivid, fast-paced movement.",
	classifier.Description:          "Continue the description with concrete sensory detail.",
	classifier.CharacterDevelopment: "Continue with the character's inner thoughts and emotions.",
	classifier.Continuation:         "Continue the story naturally from where it stops.",
}

// fallbackSuggestions fill out a suggestion list the model left short.
var fallbackSuggestions = map[string][]string{
	classifier.StoryStart: {
		"Open on a single striking image.",
		"Start in the middle of a moment of change.",
		"Begin with a line of dialogue that raises a question.",
	},
	classifier.Dialogue: {
		"Let the other character answer with a question.",
		"Have the speaker reveal something they meant to hide.",
		"Break the exchange with a small gesture or pause.",
	},
	classifier.Action: {
		"Raise the stakes with a sudden obstacle.",
		"Cut to the sharpest sensory detail of the moment.",
		"Show the cost of the move a beat later.",
	},
	classifier.Description: {
		"Add a sound or smell that sets the mood.",
		"Anchor the scene with one precise physical detail.",
		"Show how the character feels about the place.",
	},
	classifier.CharacterDevelopment: {
		"Let the character admit a doubt to themselves.",
		"Tie the feeling to a specific memory.",
		"Show the emotion through a small action.",
	},
	classifier.Continuation: {
		"Move the scene forward with a new development.",
		"Shift focus to another character's reaction.",
		"Add a detail that hints at what comes next.",
	},
}

func assistPrompt(contextText, prompt string) string {
	return fmt.Sprintf(`Relevant context from the writer's documents:
%s

Writing request:
%s

Write a helpful response that stays consistent with the context above.`, contextText, prompt)
}

func suggestPrompt(contextText, text, suggestionType string) string {
	guidance, ok := suggestionGuidance[suggestionType]
	if !ok {
		guidance = suggestionGuidance[classifier.Continuation]
	}
	return fmt.Sprintf(`You are autocompleting a writer's text, one short continuation at a time.

Relevant context from the writer's documents:
%s

Current text:
%s

Writing context: %s. %s

Return ONLY a JSON object (no markdown, no explanation):
{"suggestions": ["continuation 1", "continuation 2", "continuation 3"]}

Each continuation is one or two sentences that directly follow the current text.`, contextText, text, suggestionType, guidance)
}

func analysisPrompt(text, analysisType string) string {
	return fmt.Sprintf(`Analyze the following story excerpt (%s analysis).

Story:
%s

Return ONLY a JSON object (no markdown, no explanation):
{
  "overall_score": 7.5,
  "plot_analysis": {"structure": "...", "pacing": "...", "conflict": "..."},
  "writing_quality": {"prose": "...", "dialogue": "...", "voice": "..."},
  "improvement_suggestions": ["..."]
}

overall_score is between 0 and 10.`, analysisType, text)
}

func feedbackPrompt(contextText, text, focus string) string {
	return fmt.Sprintf(`Give coaching feedback on the writer's current text with a %s focus.

Relevant context from the writer's documents:
%s

Current text:
%s

Return ONLY a JSON object (no markdown, no explanation):
{
  "strengths": ["..."],
  "areas_for_improvement": ["..."],
  "plot_suggestions": ["..."],
  "character_insights": ["..."],
  "style_feedback": ["..."],
  "next_steps": ["..."]
}`, focus, contextText, text)
}
