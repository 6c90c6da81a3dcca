package resilience

import (
	"context"

	"github.com/MrWong99/signbridge/pkg/provider/llm"
	"github.com/MrWong99/signbridge/pkg/provider/sign"
	"github.com/MrWong99/signbridge/pkg/provider/stt"
	"github.com/MrWong99/signbridge/pkg/provider/tts"
)

// SignFallback implements [sign.Provider] over a [FallbackGroup].
type SignFallback struct {
	*FallbackGroup[sign.Provider]
}

var _ sign.Provider = (*SignFallback)(nil)

// NewSignFallback creates a SignFallback with primary as the first entry.
func NewSignFallback(primary sign.Provider, primaryName string, cfg FallbackConfig) *SignFallback {
	cfg.Kind = "sign"
	return &SignFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

type signResult struct {
	label string
	ok    bool
}

// Predict tries each recogniser in turn. "No sign" is a successful answer and
// does not fail over.
func (f *SignFallback) Predict(ctx context.Context, frame []byte) (string, bool, error) {
	res, err := ExecuteWithResult(ctx, f.FallbackGroup, func(p sign.Provider) (signResult, error) {
		label, ok, err := p.Predict(ctx, frame)
		return signResult{label, ok}, err
	})
	return res.label, res.ok, err
}

// STTFallback implements [stt.Provider] over a [FallbackGroup].
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an STTFallback with primary as the first entry.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	cfg.Kind = "stt"
	return &STTFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Transcribe tries each provider in turn.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// TTSFallback implements [tts.Provider] over a [FallbackGroup]. Each entry
// carries its own voice, since voice identifiers are provider specific.
type TTSFallback struct {
	*FallbackGroup[voiced]
}

type voiced struct {
	provider tts.Provider
	voice    tts.VoiceProfile
}

// NewTTSFallback creates a TTSFallback with primary as the first entry.
func NewTTSFallback(primary tts.Provider, voice tts.VoiceProfile, primaryName string, cfg FallbackConfig) *TTSFallback {
	cfg.Kind = "tts"
	return &TTSFallback{NewFallbackGroup(voiced{primary, voice}, primaryName, cfg)}
}

// AddFallback appends a fallback synthesiser with its own voice.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider, voice tts.VoiceProfile) {
	f.FallbackGroup.AddFallback(name, voiced{provider, voice})
}

// Synthesize tries each synthesiser in turn with that entry's voice. The
// voice argument is used only when an entry has no voice of its own.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(v voiced) ([]byte, error) {
		use := v.voice
		if use.ID == "" && use.Language == "" && use.SpeedFactor == 0 {
			use = voice
		}
		return v.provider.Synthesize(ctx, text, use)
	})
}

var _ tts.Provider = (*TTSFallback)(nil)

// LLMFallback implements [llm.Provider] over a [FallbackGroup].
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an LLMFallback with primary as the first entry.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	cfg.Kind = "llm"
	return &LLMFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Complete tries each model in turn.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
