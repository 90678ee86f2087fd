package command

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/wakepipe/internal/transcribe"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a binding to be
// offered as a suggestion.
const suggestThreshold = 0.75

// Settings is the router's slice of the pipeline configuration.
type Settings struct {
	// Prefix marks execute-mode text. It is compared case-insensitively and
	// must be followed by a word boundary. Trailing spaces and punctuation of
	// the prefix match any separator, so "command " also accepts
	// "Command, open browser". A prefix made only of punctuation, such as
	// "!", is matched literally and needs no boundary. An empty prefix
	// disables execute mode.
	Prefix string

	Bindings []Binding
}

type binding struct {
	Binding
	words []string
}

// Router classifies text. It is immutable and safe for concurrent use; the
// pipeline builds a new Router for every configuration snapshot.
type Router struct {
	prefix   string
	bounded  bool
	bindings []binding
}

// NewRouter prepares s for routing. Bindings whose phrase normalises to
// nothing are ignored.
func NewRouter(s Settings) *Router {
	r := &Router{prefix: PrefixBody(s.Prefix)}
	if last, _ := utf8.DecodeLastRuneInString(r.prefix); r.prefix != "" && !isSeparator(last) {
		r.bounded = true
	}
	for _, b := range s.Bindings {
		words := normalize(b.Phrase)
		if len(words) == 0 {
			continue
		}
		b.Args = slices.Clone(b.Args)
		r.bindings = append(r.bindings, binding{Binding: b, words: words})
	}
	// Longest phrase first; equal lengths in phrase order so ties resolve
	// the same way every time.
	slices.SortStableFunc(r.bindings, func(a, b binding) int {
		if c := cmp.Compare(len(b.words), len(a.words)); c != 0 {
			return c
		}
		return strings.Compare(strings.Join(a.words, " "), strings.Join(b.words, " "))
	})
	return r
}

// Prefix returns the effective command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Route resolves a transcription result. It depends only on the result's text
// and identifier and on the router's settings.
func (r *Router) Route(res transcribe.Result) Command {
	if !res.OK() {
		return Command{Mode: ModeType, Validation: ValidationEmpty, UtteranceID: res.UtteranceID}
	}
	cmd := r.RouteText(res.Text)
	cmd.UtteranceID = res.UtteranceID
	return cmd
}

// RouteText resolves raw recognized text.
func (r *Router) RouteText(text string) Command {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{Mode: ModeType, Validation: ValidationEmpty}
	}
	rest, ok := r.stripPrefix(trimmed)
	if !ok {
		return Command{Mode: ModeType, Text: text, Validation: ValidationOK}
	}

	words := normalize(rest)
	cmd := Command{Mode: ModeExecute, Text: strings.Join(words, " "), Validation: ValidationUnrecognized}
	for _, b := range r.bindings {
		if len(b.words) > len(words) || !slices.Equal(b.words, words[:len(b.words)]) {
			continue
		}
		cmd.Validation = ValidationOK
		cmd.ActionID = b.Action
		cmd.Binding = b.Phrase
		cmd.Args = append(slices.Clone(b.Args), words[len(b.words):]...)
		return cmd
	}
	cmd.Suggestion = r.suggest(cmd.Text)
	return cmd
}

// stripPrefix reports whether s starts with the prefix at a word boundary and
// returns what follows it.
func (r *Router) stripPrefix(s string) (string, bool) {
	if r.prefix == "" || len(s) < len(r.prefix) || !strings.EqualFold(s[:len(r.prefix)], r.prefix) {
		return "", false
	}
	rest := s[len(r.prefix):]
	if rest == "" {
		return "", true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	if r.bounded && !isSeparator(next) {
		return "", false
	}
	return rest, true
}

func (r *Router) suggest(text string) string {
	if text == "" {
		return ""
	}
	best, bestScore := "", 0.0
	for _, b := range r.bindings {
		score := matchr.JaroWinkler(text, strings.Join(b.words, " "), false)
		if score > bestScore {
			best, bestScore = b.Phrase, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

// normalize lowercases s, splits it into words and strips punctuation around
// each word.
func normalize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	words := fields[:0]
	for _, f := range fields {
		if w := strings.TrimFunc(f, unicode.IsPunct); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// PrefixBody returns the part of a configured prefix that text must start
// with: surrounding space and trailing separators are dropped unless nothing
// else would remain. An empty result means execute mode is off.
func PrefixBody(prefix string) string {
	p := strings.TrimSpace(prefix)
	if body := strings.TrimRightFunc(p, isSeparator); body != "" {
		return body
	}
	return p
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
