// Package textfilter softens strong language in narration for rated rule sets.
package textfilter

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/situation-engine/pkg/rules"
)

// replacements maps a lowercase word to its milder stand-in.
var replacements = map[string]string{
	"hell":         "heck",
	"damn":         "dang",
	"damned":       "darned",
	"dammit":       "dang it",
	"goddamn":      "gosh darn",
	"crap":         "crud",
	"crappy":       "crummy",
	"bastard":      "jerk",
	"bastards":     "jerks",
	"ass":          "butt",
	"asshole":      "jerk",
	"arse":         "butt",
	"bitch":        "witch",
	"bitches":      "witches",
	"piss":         "tick",
	"pissed":       "ticked",
	"bloody":       "blasted",
	"shit":         "shoot",
	"shitty":       "lousy",
	"bullshit":     "nonsense",
	"fuck":         "frick",
	"fucking":      "fricking",
	"fucked":       "fried",
	"motherfucker": "scoundrel",
}

// Filter replaces listed words with milder ones, keeping their case.
// A Filter is safe for concurrent use.
type Filter struct {
	re *regexp.Regexp
}

// New builds a Filter over the default word list.
func New() *Filter {
	words := make([]string, 0, len(replacements))
	for w := range replacements {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest first so "bullshit" wins over "shit" at the same position.
	slices.SortFunc(words, func(a, b string) int { return len(b) - len(a) })
	return &Filter{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)}
}

// AppliesTo reports whether narration for rating should be filtered.
// Unrated and R-rated rule sets are left alone.
func AppliesTo(rating string) bool {
	switch rating {
	case rules.RatingG, rules.RatingPG, rules.RatingPG13:
		return true
	}
	return false
}

// Clean returns text with every listed word replaced.
func (f *Filter) Clean(text string) string {
	if text == "" {
		return text
	}
	return f.re.ReplaceAllStringFunc(text, func(word string) string {
		return preserveCase(word, replacements[strings.ToLower(word)])
	})
}

// Contains reports whether text has any listed word.
func (f *Filter) Contains(text string) bool {
	return f.re.MatchString(text)
}

// preserveCase applies the casing of original to replacement. Casers carry
// state, so each call builds its own.
func preserveCase(original, replacement string) string {
	if replacement == "" {
		return original
	}
	runes := []rune(original)
	switch {
	case isUpper(original) && len(runes) > 1:
		return strings.ToUpper(replacement)
	case unicode.IsUpper(runes[0]):
		return cases.Title(language.English).String(replacement)
	}
	return replacement
}

func isUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
