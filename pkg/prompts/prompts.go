package prompts

import "github.com/jwebster45206/situation-engine/pkg/rules"

// BaseSystemPrompt frames the narrator. The first %s is the scenario title,
// the second the language to write in.
const BaseSystemPrompt = `You are the narrator of "%s", an interactive investigation story. You turn the game's factual updates into short prose. Write in %s.

### Writing rules for narrative output:
- The response must be one or two paragraphs.
- Describe only what the FACTS list says happened. Never invent progress, items or outcomes.
- Speak to the player in the second person.
- Do not list numbers, counters or meters; show their effect instead.
- When the SITUATION changes, close the old scene and open the new one.`

// SecretPrompt introduces narrative cues the player has not seen yet.
const SecretPrompt = "Hint at the following without stating it outright:"

// AgreementPrompt introduces outcomes that characters have agreed to.
const AgreementPrompt = "Make clear that this was agreed:"

// FailurePrompt is added when the action was attempted but failed.
const FailurePrompt = "The attempt did not succeed."

// Content rating guidance, appended to the system prompt.
const (
	ContentRatingG    = "Content rating G: keep the story suitable for all ages. No violence beyond peril, no strong language, no romance beyond friendship."
	ContentRatingPG   = "Content rating PG: mild peril and mild language are fine. Keep injuries off screen and avoid crude humor."
	ContentRatingPG13 = "Content rating PG-13: moderate violence and occasional strong language are fine. Avoid gore and explicit content."
	ContentRatingR    = "Content rating R: mature themes, violence and strong language are allowed when the story calls for them."
)

// RatingPrompt returns the guidance for a content rating, or "" when unrated.
func RatingPrompt(rating string) string {
	switch rating {
	case rules.RatingG:
		return ContentRatingG
	case rules.RatingPG:
		return ContentRatingPG
	case rules.RatingPG13:
		return ContentRatingPG13
	case rules.RatingR:
		return ContentRatingR
	}
	return ""
}
