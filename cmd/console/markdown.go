package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
)

// markdownRenderer renders authored scenes and narration that use markdown.
// glamour renderers are bound to a wrap width, so one is kept per width.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// hasMarkdown reports whether text uses markup worth rendering.
func hasMarkdown(text string) bool {
	if strings.ContainsAny(text, "*_`") {
		return true
	}
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "> ") {
			return true
		}
	}
	return false
}

// Render returns text formatted for width. Plain text and render failures
// fall back to a word wrap.
func (r *markdownRenderer) Render(text string, width int) string {
	if width < 10 || !hasMarkdown(text) {
		return wordwrap.String(text, max(width, 1))
	}
	if r.renderer == nil || r.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return wordwrap.String(text, width)
		}
		r.renderer, r.width = renderer, width
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		return wordwrap.String(text, width)
	}
	return strings.Trim(out, "\n")
}
