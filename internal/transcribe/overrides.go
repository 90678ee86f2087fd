package transcribe

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Overrides replaces misrecognized words in transcribed text. Matching is
// case-insensitive and on whole words; replacements are inserted as given.
// A key that starts or ends with a symbol, such as "c++", needs no word
// boundary on that side. Text no rule touches is returned unchanged. The
// zero value replaces nothing.
type Overrides struct {
	rules []overrideRule
}

type overrideRule struct {
	from string
	re   *regexp.Regexp
	to   string

	// Whether the key's first and last runes are word runes and so need a
	// non-word neighbour.
	headBound, tailBound bool
}

// NewOverrides compiles the word → replacement table. Empty keys are ignored.
// Longer keys are applied first so "open ai" wins over "ai".
func NewOverrides(table map[string]string) *Overrides {
	o := &Overrides{}
	for from, to := range table {
		from = strings.TrimSpace(from)
		if from == "" {
			continue
		}
		head, _ := utf8.DecodeRuneInString(from)
		tail, _ := utf8.DecodeLastRuneInString(from)
		o.rules = append(o.rules, overrideRule{
			from:      from,
			re:        regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from)),
			to:        to,
			headBound: isWordRune(head),
			tailBound: isWordRune(tail),
		})
	}
	slices.SortFunc(o.rules, func(a, b overrideRule) int {
		if c := cmp.Compare(len(b.from), len(a.from)); c != 0 {
			return c
		}
		return strings.Compare(a.from, b.from)
	})
	return o
}

// Len returns the number of rules.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.rules)
}

// Apply returns text with every rule applied. A rule with an empty
// replacement also removes the whitespace it leaves behind.
func (o *Overrides) Apply(text string) string {
	if o == nil {
		return text
	}
	for _, r := range o.rules {
		text = r.apply(text)
	}
	return text
}

func (r overrideRule) apply(text string) string {
	locs := r.re.FindAllStringIndex(text, -1)
	if locs == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if !r.isolated(text, start, end) {
			continue
		}
		before := text[last:start]
		if r.to != "" {
			b.WriteString(before)
			b.WriteString(r.to)
			last = end
			continue
		}
		b.WriteString(strings.TrimRightFunc(before, unicode.IsSpace))
		for end < len(text) {
			c, n := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(c) {
				break
			}
			end += n
		}
		if b.Len() > 0 && end < len(text) {
			if c, _ := utf8.DecodeRuneInString(text[end:]); !unicode.IsPunct(c) {
				b.WriteByte(' ')
			}
		}
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// isolated reports whether text[start:end] sits on word boundaries where the
// key needs them.
func (r overrideRule) isolated(text string, start, end int) bool {
	if r.headBound && start > 0 {
		if c, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(c) {
			return false
		}
	}
	if r.tailBound && end < len(text) {
		if c, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(c) {
			return false
		}
	}
	return true
}

func isWordRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
