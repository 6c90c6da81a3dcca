// Package phonetic matches spelled-out words against a known vocabulary using
// Double Metaphone encoding combined with Jaro-Winkler similarity.
//
// Fingerspelling drops and doubles letters ("HELO", "HELLLO"), so words
// assembled from signs are snapped to the closest vocabulary entry when one is
// close enough:
//
//  1. Phonetic candidates: the Double Metaphone codes of the input overlap
//     with those of the entry. Accepted above the phonetic threshold
//     (default 0.70).
//  2. Fuzzy fallback: no phonetic candidate was found, but the Jaro-Winkler
//     similarity alone exceeds the fuzzy threshold (default 0.85).
//
// Multi-word entries (e.g., "New York") are compared both as written and with
// spaces removed.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched entry to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher snaps words to vocabulary entries. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type entry struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Vocabulary is a prepared list of known words and phrases. Phonetic codes
// are computed once when the vocabulary is built. A Vocabulary is immutable.
type Vocabulary struct {
	entries  []entry
	maxWords int
}

// NewVocabulary prepares words for matching. Blank and duplicate entries
// (case-insensitive) are dropped; the first spelling wins.
func NewVocabulary(words []string) *Vocabulary {
	v := &Vocabulary{}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		lower := strings.ToLower(strings.Join(strings.Fields(w), " "))
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens := strings.Fields(lower)
		v.entries = append(v.entries, entry{
			canonical: strings.TrimSpace(w),
			lower:     lower,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// MaxWords returns the token count of the longest entry.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Words returns the canonical spellings in insertion order.
func (v *Vocabulary) Words() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.canonical
	}
	return out
}

// Match finds the vocabulary entry most similar to word, which may be a single
// word or a space-separated phrase.
//
// When matched is false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, vocab *Vocabulary) (corrected string, confidence float64, matched bool) {
	wordLower := strings.ToLower(strings.TrimSpace(word))
	if vocab.Len() == 0 || wordLower == "" {
		return word, 0, false
	}
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		entry    *entry
		score    float64
		phonetic bool
	}
	var best candidate

	for i := range vocab.entries {
		e := &vocab.entries[i]
		if e.lower == strings.Join(wordTokens, " ") {
			return e.canonical, 1, true
		}
		score := bestJWScore(wordTokens, e.tokens, wordLower, e.lower)

		if codesOverlap(inputCodes, e.codes) {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{entry: e, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{entry: e, score: score}
		}
	}

	if best.entry != nil {
		return best.entry.canonical, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the higher Jaro-Winkler similarity of the full strings and
// of the space-stripped strings ("new york" vs "newyork").
func bestJWScore(inputTokens, entryTokens []string, inputFull, entryFull string) float64 {
	score := matchr.JaroWinkler(inputFull, entryFull, false)
	if len(inputTokens) > 1 || len(entryTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(entryTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
