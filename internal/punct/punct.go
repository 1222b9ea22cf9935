// Package punct applies language-aware typography rules to transcribed
// text. French typography puts a space before ? ! : ; and inside guillemets;
// English and other languages get no space before punctuation. Both get
// sentence capitalization and cleanup of common transcription artifacts.
package punct

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Compiled once at package init. The rules run on every transcription, so
// per-call compilation would be wasted work.
var (
	reWhitespace = regexp.MustCompile(`\s+`)

	// French high punctuation takes a leading space.
	reHighPunct        = regexp.MustCompile(`\s*([?!:;])`)
	reNoSpaceHighPunct = regexp.MustCompile(`\s+([?!:;])`)

	reOpenGuillemet  = regexp.MustCompile(`«\s*`)
	reCloseGuillemet = regexp.MustCompile(`\s*»`)

	reSpaceBeforeLowPunct = regexp.MustCompile(`\s+([,.])`)
	reLowPunctNoSpace     = regexp.MustCompile(`([,.])(\pL)`)

	reSentenceStart = regexp.MustCompile(`([.!?])(\s+)(\p{Ll})`)

	// Elided French articles and pronouns followed by a stray space before
	// the apostrophe ("l 'homme" becomes "l'homme").
	reContraction   = regexp.MustCompile(`(?i)\b([ldjmtscn])\s+'`)
	reQuContraction = regexp.MustCompile(`(?i)\bqu\s+'`)

	reRepeatedEnders = regexp.MustCompile(`([.!?])[.!?]+`)

	// Hesitation fillers whisper occasionally transcribes.
	reFillers = regexp.MustCompile(`(?i)\b(euh+|hum+|hmm+)\b`)
)

// Processor normalizes transcribed text. The zero value applies no rules;
// use New for the standard configuration.
type Processor struct {
	frenchSpacing  bool
	cleanArtifacts bool
	capitalize     bool
}

// Option is a functional option for configuring a Processor.
type Option func(*Processor)

// WithFrenchSpacing toggles French spacing rules for French or undetected
// languages. Enabled by default.
func WithFrenchSpacing(enabled bool) Option {
	return func(p *Processor) { p.frenchSpacing = enabled }
}

// WithArtifactCleanup toggles removal of hesitation fillers. Enabled by
// default.
func WithArtifactCleanup(enabled bool) Option {
	return func(p *Processor) { p.cleanArtifacts = enabled }
}

// WithCapitalization toggles sentence capitalization. Enabled by default.
func WithCapitalization(enabled bool) Option {
	return func(p *Processor) { p.capitalize = enabled }
}

// New creates a Processor with all rules enabled.
func New(opts ...Option) *Processor {
	p := &Processor{
		frenchSpacing:  true,
		cleanArtifacts: true,
		capitalize:     true,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format normalizes text according to the typography of the detected
// language ("fr", "en", ...; empty means unknown). It is pure and
// deterministic; the error return exists to satisfy the coordinator's
// formatter contract and is always nil.
func (p *Processor) Format(text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	if p.cleanArtifacts {
		text = reFillers.ReplaceAllString(text, "")
	}

	text = strings.TrimSpace(text)
	text = reWhitespace.ReplaceAllString(text, " ")

	// French rules apply when enabled and the language is French or unknown.
	french := p.frenchSpacing && (language == "" || language == "fr")

	if french {
		text = reHighPunct.ReplaceAllString(text, " $1")
		text = reOpenGuillemet.ReplaceAllString(text, "« ")
		text = reCloseGuillemet.ReplaceAllString(text, " »")
	} else {
		text = reNoSpaceHighPunct.ReplaceAllString(text, "$1")
	}

	// Commas and periods hug the preceding word in every language and take
	// a space before the next one.
	text = reSpaceBeforeLowPunct.ReplaceAllString(text, "$1")
	text = reLowPunctNoSpace.ReplaceAllString(text, "$1 $2")

	if p.capitalize {
		text = upperFirst(text)
		text = reSentenceStart.ReplaceAllStringFunc(text, func(m string) string {
			sub := reSentenceStart.FindStringSubmatch(m)
			return sub[1] + sub[2] + strings.ToUpper(sub[3])
		})
	}

	if french {
		text = reContraction.ReplaceAllString(text, "$1'")
		text = reQuContraction.ReplaceAllStringFunc(text, func(m string) string {
			return m[:2] + "'"
		})
	}

	text = reRepeatedEnders.ReplaceAllString(text, "$1")
	text = reWhitespace.ReplaceAllString(text, " ")

	return strings.TrimSpace(text), nil
}

// upperFirst uppercases the first rune, leaving the rest untouched.
func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
