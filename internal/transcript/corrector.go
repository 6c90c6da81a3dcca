// Package transcript fixes spelling in words and sentences assembled from
// fingerspelled signs.
//
// The [Corrector] applies two optional stages in order:
//
//  1. Phonetic matching ([phonetic.Matcher]): snaps words, and n-gram windows
//     of words, to the closest entry of a known vocabulary. Runs in-process
//     with no network calls.
//  2. LLM correction ([llmcorrect.Corrector]): fixes spelling and word
//     boundaries of whole sentences. Single words never reach this stage.
//
// Each [Correction] records which stage produced the substitution, so callers
// can audit or display changes.
package transcript

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/signbridge/internal/transcript/llmcorrect"
	"github.com/MrWong99/signbridge/internal/transcript/phonetic"
)

// Correction methods.
const (
	MethodPhonetic = "phonetic"
	MethodLLM      = "llm"
)

// Correction captures a single substitution made by the [Corrector].
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
	Method     string
}

// Result is the output of [Corrector.CorrectDetailed].
type Result struct {
	Original  string
	Corrected string

	// Corrections is the ordered list of substitutions. Empty and non-nil
	// when nothing changed.
	Corrections []Correction
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithMatcher sets the phonetic matcher. Defaults to [phonetic.New].
func WithMatcher(m *phonetic.Matcher) Option {
	return func(c *Corrector) { c.matcher = m }
}

// WithLLM enables the sentence stage.
func WithLLM(l *llmcorrect.Corrector) Option {
	return func(c *Corrector) { c.llm = l }
}

// WithVocabulary sets the initial vocabulary.
func WithVocabulary(words []string) Option {
	return func(c *Corrector) { c.SetVocabulary(words) }
}

// Corrector is the two-stage spelling corrector. It is safe for concurrent
// use and its vocabulary can be replaced while requests are in flight.
type Corrector struct {
	matcher *phonetic.Matcher
	llm     *llmcorrect.Corrector
	vocab   atomic.Pointer[phonetic.Vocabulary]
}

// New constructs a [Corrector]. Without a vocabulary the phonetic stage is a
// no-op; without [WithLLM] the sentence stage is skipped.
func New(opts ...Option) *Corrector {
	c := &Corrector{}
	c.vocab.Store(phonetic.NewVocabulary(nil))
	for _, o := range opts {
		o(c)
	}
	if c.matcher == nil {
		c.matcher = phonetic.New()
	}
	return c
}

// SetVocabulary replaces the known words used by both stages.
func (c *Corrector) SetVocabulary(words []string) {
	c.vocab.Store(phonetic.NewVocabulary(words))
}

// Vocabulary returns the current known words.
func (c *Corrector) Vocabulary() []string {
	return c.vocab.Load().Words()
}

// Correct returns the corrected text. On an LLM failure the phonetically
// corrected text is returned together with the error.
func (c *Corrector) Correct(ctx context.Context, text string) (string, error) {
	res, err := c.CorrectDetailed(ctx, text)
	return res.Corrected, err
}

// CorrectDetailed corrects text and itemises every substitution. The result is
// always usable, even when err is non-nil.
func (c *Corrector) CorrectDetailed(ctx context.Context, text string) (*Result, error) {
	vocab := c.vocab.Load()
	res := &Result{
		Original:    text,
		Corrected:   text,
		Corrections: []Correction{},
	}

	if vocab.Len() > 0 {
		res.Corrected, res.Corrections = c.applyPhonetic(text, vocab)
	}

	if c.llm == nil || len(strings.Fields(res.Corrected)) < 2 {
		return res, nil
	}
	out, corrections, err := c.llm.Correct(ctx, res.Corrected, vocab.Words())
	if err != nil {
		return res, err
	}
	res.Corrected = out
	for _, lc := range corrections {
		res.Corrections = append(res.Corrections, Correction{
			Original:   lc.Original,
			Corrected:  lc.Corrected,
			Confidence: lc.Confidence,
			Method:     MethodLLM,
		})
	}
	return res, nil
}

// applyPhonetic walks the tokens of text and, at each position, tries n-gram
// windows from the longest vocabulary entry down to one word. The longest
// match wins so that "NEW YORK" becomes one entry instead of two partial
// matches.
func (c *Corrector) applyPhonetic(text string, vocab *phonetic.Vocabulary) (string, []Correction) {
	tokens := strings.Fields(text)
	corrections := []Correction{}
	if len(tokens) == 0 {
		return text, corrections
	}

	output := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		maxN := min(vocab.MaxWords(), len(tokens)-i)
		consumed := 0
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			word, conf, ok := c.matcher.Match(window, vocab)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(word)...)
			if word != window {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  word,
					Confidence: conf,
					Method:     MethodPhonetic,
				})
			}
			consumed = n
			break
		}
		if consumed == 0 {
			output = append(output, tokens[i])
			consumed = 1
		}
		i += consumed
	}
	return strings.Join(output, " "), corrections
}
