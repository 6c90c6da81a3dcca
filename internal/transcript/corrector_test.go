package transcript_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/signbridge/internal/transcript"
	"github.com/MrWong99/signbridge/internal/transcript/llmcorrect"
	"github.com/MrWong99/signbridge/pkg/provider/llm"
	"github.com/MrWong99/signbridge/pkg/provider/llm/mock"
)

var vocab = []string{"Hello", "Thanks", "New York", "Anna"}

// ─── phonetic stage ───────────────────────────────────────────────────────────

func TestCorrector_PhoneticSingleWord(t *testing.T) {
	t.Parallel()

	c := transcript.New(transcript.WithVocabulary(vocab))

	res, err := c.CorrectDetailed(context.Background(), "HELO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Corrected != "Hello" {
		t.Errorf("Corrected = %q, want Hello", res.Corrected)
	}
	if len(res.Corrections) != 1 || res.Corrections[0].Method != transcript.MethodPhonetic {
		t.Errorf("Corrections = %+v", res.Corrections)
	}
}

func TestCorrector_PhoneticMultiWordWindow(t *testing.T) {
	t.Parallel()

	c := transcript.New(transcript.WithVocabulary(vocab))

	got, err := c.Correct(context.Background(), "I LOVE NEW YORK")
	if err != nil {
		t.Fatal(err)
	}
	if got != "I LOVE New York" {
		t.Errorf("Correct = %q, want %q", got, "I LOVE New York")
	}
}

func TestCorrector_NoVocabularyIsIdentity(t *testing.T) {
	t.Parallel()

	c := transcript.New()
	res, err := c.CorrectDetailed(context.Background(), "HELO")
	if err != nil {
		t.Fatal(err)
	}
	if res.Corrected != "HELO" {
		t.Errorf("Corrected = %q, want input", res.Corrected)
	}
	if res.Corrections == nil || len(res.Corrections) != 0 {
		t.Errorf("Corrections = %#v, want empty non-nil", res.Corrections)
	}
}

func TestCorrector_SetVocabulary(t *testing.T) {
	t.Parallel()

	c := transcript.New()
	c.SetVocabulary([]string{"Brno", "brno", ""})

	if got := c.Vocabulary(); len(got) != 1 || got[0] != "Brno" {
		t.Fatalf("Vocabulary = %v, want [Brno]", got)
	}
	got, _ := c.Correct(context.Background(), "BRNO")
	if got != "Brno" {
		t.Errorf("Correct = %q, want Brno", got)
	}
}

func TestCorrector_ConcurrentVocabularySwap(t *testing.T) {
	t.Parallel()

	c := transcript.New(transcript.WithVocabulary(vocab))
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				c.SetVocabulary(vocab)
				return
			}
			_, _ = c.Correct(context.Background(), "HELO ANA")
		}()
	}
	wg.Wait()
}

// ─── LLM stage ────────────────────────────────────────────────────────────────

func TestCorrector_LLMRunsOnSentences(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"corrected": "Hello Anna", "corrections": []}`,
	}}
	c := transcript.New(
		transcript.WithVocabulary(vocab),
		transcript.WithLLM(llmcorrect.New(provider)),
	)

	res, err := c.CorrectDetailed(context.Background(), "HELO ANA")
	if err != nil {
		t.Fatal(err)
	}
	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(calls))
	}
	// The LLM sees the phonetically corrected sentence.
	if got := calls[0].Req.Messages[0].Content; got != "Hello Anna" {
		t.Errorf("LLM input = %q, want %q", got, "Hello Anna")
	}
	if res.Corrected != "Hello Anna" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
}

func TestCorrector_LLMSkippedForSingleWord(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"corrected": "x"}`}}
	c := transcript.New(transcript.WithLLM(llmcorrect.New(provider)))

	got, err := c.Correct(context.Background(), "HELO")
	if err != nil {
		t.Fatal(err)
	}
	if got != "HELO" {
		t.Errorf("Correct = %q, want HELO", got)
	}
	if len(provider.Calls()) != 0 {
		t.Error("single words must not reach the LLM")
	}
}

func TestCorrector_LLMErrorKeepsPhoneticResult(t *testing.T) {
	t.Parallel()

	c := transcript.New(
		transcript.WithVocabulary(vocab),
		transcript.WithLLM(llmcorrect.New(&mock.Provider{CompleteErr: errors.New("boom")})),
	)

	got, err := c.Correct(context.Background(), "HELO ANA")
	if err == nil {
		t.Fatal("expected error")
	}
	if got != "Hello Anna" {
		t.Errorf("Correct = %q, want phonetic result", got)
	}
}
