package hub

import "strings"

// sentenceBuilder accumulates predicted sign labels into words and sentences.
//
// A label is accepted once it has been predicted on threshold further
// consecutive frames after its first sighting; a threshold of zero accepts
// every prediction. Accepting a label resets the stability counter so a held
// sign repeats only after another full run.
type sentenceBuilder struct {
	spaceToken string

	prev  string
	count int

	word  strings.Builder
	words []string
}

func newSentenceBuilder(spaceToken string) *sentenceBuilder {
	return &sentenceBuilder{spaceToken: spaceToken}
}

// observe feeds one prediction and returns the label if it became stable.
func (b *sentenceBuilder) observe(label string, threshold int) (string, bool) {
	if label == b.prev {
		b.count++
	} else {
		b.prev = label
		b.count = 0
	}
	if b.count < threshold {
		return "", false
	}
	b.prev = ""
	b.count = 0
	return label, true
}

// isSpace reports whether label closes the current word.
func (b *sentenceBuilder) isSpace(label string) bool {
	return b.spaceToken != "" && strings.EqualFold(label, b.spaceToken)
}

// appendLabel adds an accepted non-space label to the current word.
func (b *sentenceBuilder) appendLabel(label string) {
	b.word.WriteString(label)
}

// takeWord returns the pending word and clears it.
func (b *sentenceBuilder) takeWord() string {
	w := b.word.String()
	b.word.Reset()
	return w
}

// commitWord appends a finished, possibly corrected, word to the sentence.
func (b *sentenceBuilder) commitWord(w string) {
	if w != "" {
		b.words = append(b.words, w)
	}
}

// sentence returns the committed words plus the pending word.
func (b *sentenceBuilder) sentence() string {
	parts := b.words
	if b.word.Len() > 0 {
		parts = append(parts[:len(parts):len(parts)], b.word.String())
	}
	return strings.Join(parts, " ")
}

func (b *sentenceBuilder) reset() {
	b.prev = ""
	b.count = 0
	b.word.Reset()
	b.words = nil
}
