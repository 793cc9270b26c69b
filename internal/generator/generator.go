package generator

import (
	"context"
	"fmt"
	"strings"
)

// Request carries normalized inputs for one outline generation.
type Request struct {
	Character1 string
	Character2 string
	PlotPrompt string
	Language   string
}

/// Outcome is the upstream result: generated text, or a safety block with a
// categorical reason. Transport failures are returned as errors instead.
type Outcome struct {
	Text        string
	Blocked     bool
	BlockReason string
}

// Generator produces plot outlines from character and prompt inputs.
type Generator interface {
	GenerateOutline(ctx context.Context, req Request) (Outcome, error)
}

// languageInstructions maps request language codes to prompt instructions.
var languageInstructions = map[string]string{
	"en":    "in English",
	"zh-CN": "in Simplified Chinese",
	"zh-TW": "in Traditional Chinese",
}

// LanguageInstruction returns the output-language instruction for a code,
// defaulting to English for unknown codes.
func LanguageInstruction(language string) string {
	if instruction, ok := languageInstructions[strings.TrimSpace(language)]; ok {
		return instruction
	}
	return languageInstructions["en"]
}

// BuildPrompt renders the outline prompt for the request. The pronoun
// directive matters: the upstream model misgenders characters without it.
func BuildPrompt(req Request) string {
	return fmt.Sprintf(`You are a world-class screenwriter and fanfiction author, an expert at crafting emotionally resonant stories.
Your task is to generate a detailed plot outline **%s** based on the following characters and prompt.
The story may involve mature themes, which should be handled with literary depth.
**Crucially, you must pay close attention to gender cues in the character descriptions and use the correct pronouns (e.g., he/him for male characters, she/her for female characters) throughout the entire outline. Misgendering a character is a critical failure.**
The outline should be logical, in-character, and full of emotional tension.

**Character 1:** %s
**Character 2:** %s
**Core Plot Prompt:** %s

Please generate a detailed plot outline with the following sections:
1.  **Opening:** How the story begins.
2.  **Inciting Incident:** The event that kicks off the main plot.
3.  **Rising Action:** A series of events that build tension.
4.  **Climax:** The turning point of the story.
5.  **Falling Action:** The immediate aftermath of the climax.
6.  **Resolution:** The conclusion of the story.
`, LanguageInstruction(req.Language), req.Character1, req.Character2, req.PlotPrompt)
}
