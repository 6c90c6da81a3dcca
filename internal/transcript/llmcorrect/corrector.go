// Package llmcorrect fixes the spelling of whole sentences assembled from
// fingerspelled words with a language model.
//
// The [Corrector] sends the raw sentence to an [llm.Provider] with a
// conservative system prompt and the known vocabulary. The model answers with
// JSON holding the corrected sentence and an itemised list of substitutions.
// Every change is then checked against the original: listed substitutions and
// plain spelling fixes are kept, any other rewording is reverted.
//
// When the model's answer cannot be parsed the original text is returned
// unchanged without an error.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/signbridge/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 256
)

const systemPrompt = `You correct sentences that a deaf or hard-of-hearing person spelled letter by letter in sign language.
The letters were recognised by a camera, so words may have missing, doubled or swapped letters, and words may run together.

Rules:
- Fix spelling and word boundaries only. Do NOT add, remove or reorder words and do NOT rephrase.
- Use normal sentence capitalisation.
- If a word is one of the known words below, use exactly that spelling.
- If you are unsure about a word, leave it unchanged.
%s
Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected": "<full corrected sentence>",
  "corrections": [
    {"original": "<original word(s)>", "corrected": "<replacement>", "confidence": <0.0-1.0>}
  ]
}`

// Correction is a single substitution kept after verification.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

type llmResponse struct {
	Corrected   string `json:"corrected"`
	Corrections []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector uses an [llm.Provider] to fix sentence spelling. It is safe for
// concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a new [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct asks the model to fix text, using vocabulary as the list of known
// spellings. Provider errors are returned; unparseable answers are not.
func (c *Corrector) Correct(ctx context.Context, text string, vocabulary []string) (string, []Correction, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(vocabulary),
		Temperature:  c.temperature,
		MaxTokens:    defaultMaxTokens,
		JSON:         true,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: text},
		},
	})
	if err != nil {
		return text, nil, fmt.Errorf("llm corrector: complete: %w", err)
	}
	if resp == nil || resp.Truncated {
		return text, nil, nil
	}

	corrected, corrections, err := parseResponse(resp.Content)
	if err != nil || corrected == "" {
		return text, nil, nil //nolint:nilerr // unparseable answers keep the input
	}
	out, verified := verifyCorrectedText(text, corrected, corrections)
	return out, verified, nil
}

func buildSystemPrompt(vocabulary []string) string {
	if len(vocabulary) == 0 {
		return fmt.Sprintf(systemPrompt, "")
	}
	var sb strings.Builder
	sb.WriteString("\nKnown words:\n")
	for _, w := range vocabulary {
		sb.WriteString("- ")
		sb.WriteString(w)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPrompt, sb.String())
}

// parseResponse unmarshals the model output, tolerating markdown fences.
func parseResponse(content string) (string, []Correction, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return "", nil, fmt.Errorf("llm corrector: parse response: %w", err)
	}
	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}
	return strings.TrimSpace(r.Corrected), corrections, nil
}

// stripMarkdown removes optional ```json fences some models wrap output in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
