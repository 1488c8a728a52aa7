package prompts

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/jwebster45206/situation-engine/pkg/chat"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// Turn carries the structured facts of one processed action.
type Turn struct {
	ActionID string
	Target   string
	Success  bool
	Facts    []string // procedural log lines
	Secrets  []string
	Agreed   []string
	FromID   string // situation before the action
}

// Builder constructs narration messages using a fluent interface.
type Builder struct {
	rules        *rules.GameRules
	gs           *state.GameState
	turn         *Turn
	historyLimit int
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{historyLimit: 6}
}

// WithRules sets the rule set being played.
func (b *Builder) WithRules(r *rules.GameRules) *Builder {
	b.rules = r
	return b
}

// WithGameState sets the state after the action was processed.
func (b *Builder) WithGameState(gs *state.GameState) *Builder {
	b.gs = gs
	return b
}

// WithTurn sets the facts of the processed action.
func (b *Builder) WithTurn(t Turn) *Builder {
	b.turn = &t
	return b
}

// WithHistoryLimit sets how many earlier narration entries are replayed.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// Build constructs and returns the final message array.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.rules == nil {
		return nil, fmt.Errorf("rules are required")
	}
	if b.gs == nil {
		return nil, fmt.Errorf("gamestate is required")
	}
	if b.turn == nil {
		return nil, fmt.Errorf("turn is required")
	}

	system := fmt.Sprintf(BaseSystemPrompt, b.rules.Title, LanguageName(b.rules.Language))
	if rp := RatingPrompt(b.rules.Rating); rp != "" {
		system += "\n\n" + rp
	}
	messages := []chat.ChatMessage{chat.System(system)}
	if b.rules.Description != "" {
		messages = append(messages, chat.System("Premise: "+b.rules.Description))
	}

	// Earlier narration rides in the system prompt so the conversation
	// always opens with a user turn.
	if hist := b.history(); len(hist) > 0 {
		lines := make([]string, len(hist))
		for i, entry := range hist {
			lines[i] = entry.Text
		}
		messages = append(messages, chat.System("Story so far:\n"+strings.Join(lines, "\n\n")))
	}

	messages = append(messages, chat.User(b.turnMessage()))
	return messages, nil
}

func (b *Builder) history() []state.LogEntry {
	var narration []state.LogEntry
	for _, e := range b.gs.Log {
		if e.Kind == state.LogNarration {
			narration = append(narration, e)
		}
	}
	if b.historyLimit >= 0 && len(narration) > b.historyLimit {
		narration = narration[len(narration)-b.historyLimit:]
	}
	return narration
}

func (b *Builder) turnMessage() string {
	t := b.turn
	var sb strings.Builder

	sb.WriteString("SITUATION: ")
	sb.WriteString(b.situationLabel(t.FromID))
	if b.gs.Situation != t.FromID {
		sb.WriteString(" -> ")
		sb.WriteString(b.situationLabel(b.gs.Situation))
	}
	sb.WriteString("\n")
	if sit, ok := b.rules.Situations.Get(b.gs.Situation); ok {
		if sit.Scene != "" {
			sb.WriteString("SCENE: " + sit.Scene + "\n")
		}
		if len(sit.Targets) > 0 {
			sb.WriteString("KNOWN TARGETS: " + strings.Join(sit.Targets, ", ") + "\n")
		}
	}

	sb.WriteString("ACTION: " + ActionLabel(b.rules, t.ActionID))
	if t.Target != "" {
		sb.WriteString(" " + t.Target)
	}
	sb.WriteString("\n")
	if !t.Success {
		sb.WriteString(FailurePrompt + "\n")
	}

	if len(t.Facts) > 0 {
		sb.WriteString("FACTS:\n")
		for _, f := range t.Facts {
			sb.WriteString("- " + f + "\n")
		}
	} else {
		sb.WriteString("FACTS: nothing changed.\n")
	}
	writeList(&sb, SecretPrompt, t.Secrets)
	writeList(&sb, AgreementPrompt, t.Agreed)
	return strings.TrimRight(sb.String(), "\n")
}

func writeList(sb *strings.Builder, header string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(header + "\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
}

func (b *Builder) situationLabel(id string) string {
	if sit, ok := b.rules.Situations.Get(id); ok && sit.Label != "" {
		return sit.Label
	}
	return id
}

// ActionLabel returns the catalog label of an action, title-cased in the
// rule set's language. Unknown actions fall back to the id.
func ActionLabel(r *rules.GameRules, actionID string) string {
	label := actionID
	if a, ok := r.Actions[actionID]; ok && a.Label != "" {
		label = a.Label
	}
	return cases.Title(languageTag(r.Language)).String(label)
}

// LanguageName returns the English name of a BCP 47 tag, defaulting to English.
func LanguageName(tag string) string {
	t := languageTag(tag)
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return "English"
}

func languageTag(tag string) language.Tag {
	if tag == "" {
		return language.English
	}
	t, err := language.Parse(tag)
	if err != nil {
		return language.English
	}
	return t
}
