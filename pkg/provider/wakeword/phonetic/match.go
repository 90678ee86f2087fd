package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// MatchPhrase scores how well text contains phrase, in [0, 1].
//
// Every run of words in text with the same length as phrase is compared with
// Jaro-Winkler similarity on the space-stripped strings. When every word of
// the run also shares a Double Metaphone code with the corresponding phrase
// word, the score is lifted halfway towards 1, so "hey computa" still scores
// high while "hey commuter" does not. The best run wins.
func MatchPhrase(text, phrase string) float64 {
	phraseTokens := tokenize(phrase)
	textTokens := tokenize(text)
	if len(phraseTokens) == 0 || len(textTokens) < len(phraseTokens) {
		// Fall back to comparing the whole utterance with the phrase.
		if len(textTokens) == 0 || len(phraseTokens) == 0 {
			return 0
		}
		return matchr.JaroWinkler(strings.Join(textTokens, ""), strings.Join(phraseTokens, ""), false)
	}

	target := strings.Join(phraseTokens, "")
	phraseCodes := make([]map[string]struct{}, len(phraseTokens))
	for i, t := range phraseTokens {
		phraseCodes[i] = codes(t)
	}

	var best float64
	n := len(phraseTokens)
	for i := 0; i+n <= len(textTokens); i++ {
		run := textTokens[i : i+n]
		score := matchr.JaroWinkler(strings.Join(run, ""), target, false)
		if phoneticRun(run, phraseCodes) {
			score = (score + 1) / 2
		}
		if score > best {
			best = score
		}
	}
	return best
}

// BestPhrase returns the phrase in phrases that text matches best.
func BestPhrase(text string, phrases []string) (string, float64) {
	var (
		bestPhrase string
		bestScore  float64
	)
	for _, p := range phrases {
		if s := MatchPhrase(text, p); s > bestScore {
			bestPhrase, bestScore = p, s
		}
	}
	return bestPhrase, bestScore
}

func phoneticRun(run []string, phraseCodes []map[string]struct{}) bool {
	for i, tok := range run {
		if !overlap(codes(tok), phraseCodes[i]) {
			return false
		}
	}
	return true
}

// tokenize lowercases s and splits it on anything that is not a letter or
// digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codes returns the Double Metaphone codes of a word. Empty codes are dropped.
func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
