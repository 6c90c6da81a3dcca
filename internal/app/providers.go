package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/resilience"
	"github.com/MrWong99/signbridge/pkg/provider/llm"
	"github.com/MrWong99/signbridge/pkg/provider/sign"
	"github.com/MrWong99/signbridge/pkg/provider/stt"
	"github.com/MrWong99/signbridge/pkg/provider/tts"
)

// Providers holds one interface value per interpretation stage. Nil means
// the stage is not configured.
type Providers struct {
	Sign sign.Provider
	STT  stt.Provider
	TTS  tts.Provider
	LLM  llm.Provider

	// Voice is passed to TTS on every call. Fallback entries with a voice of
	// their own override it.
	Voice tts.VoiceProfile
}

type built[T any] struct {
	name  string
	value T
	entry config.ProviderEntry
}

// BuildProviders instantiates every provider named in cfg through reg and
// wraps each stage in a circuit-breaking fallback chain. Names without a
// registered factory are skipped with a warning.
func BuildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics, log *slog.Logger) (*Providers, error) {
	if log == nil {
		log = slog.Default()
	}
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
			Logger:       log,
		},
		Metrics: metrics,
	}
	ps := &Providers{}

	signs, err := createChain(log, "sign", cfg.Providers.Sign, reg.CreateSign)
	if err != nil {
		return nil, err
	}
	if len(signs) > 0 {
		f := resilience.NewSignFallback(signs[0].value, signs[0].name, fcfg)
		for _, b := range signs[1:] {
			f.AddFallback(b.name, b.value)
		}
		ps.Sign = f
	}

	stts, err := createChain(log, "stt", cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	if len(stts) > 0 {
		f := resilience.NewSTTFallback(stts[0].value, stts[0].name, fcfg)
		for _, b := range stts[1:] {
			f.AddFallback(b.name, b.value)
		}
		ps.STT = f
	}

	ttss, err := createChain(log, "tts", cfg.Providers.TTS, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	if len(ttss) > 0 {
		ps.Voice = voiceProfile(ttss[0].entry.Voice)
		f := resilience.NewTTSFallback(ttss[0].value, ps.Voice, ttss[0].name, fcfg)
		for _, b := range ttss[1:] {
			f.AddFallback(b.name, b.value, voiceProfile(b.entry.Voice))
		}
		ps.TTS = f
	}

	llms, err := createChain(log, "llm", cfg.Providers.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	if len(llms) > 0 {
		f := resilience.NewLLMFallback(llms[0].value, llms[0].name, fcfg)
		for _, b := range llms[1:] {
			f.AddFallback(b.name, b.value)
		}
		ps.LLM = f
	}

	return ps, nil
}

// createChain builds the primary entry followed by its fallbacks. When the
// primary is not registered, the first registered fallback takes its place.
func createChain[T any](log *slog.Logger, kind string, primary config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]built[T], error) {
	if primary.Name == "" {
		return nil, nil
	}
	entries := append([]config.ProviderEntry{primary}, primary.Fallbacks...)
	out := make([]built[T], 0, len(entries))
	for _, e := range entries {
		v, err := create(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			log.Warn("provider not registered, skipping", "kind", kind, "name", e.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("app: create %s provider %q: %w", kind, e.Name, err)
		}
		out = append(out, built[T]{name: entryLabel(e), value: v, entry: e})
		log.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
	}
	return out, nil
}

// entryLabel names an entry in logs and metrics; the model tells apart two
// entries of the same provider.
func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + ":" + e.Model
}

func voiceProfile(v *config.VoiceConfig) tts.VoiceProfile {
	if v == nil {
		return tts.VoiceProfile{}
	}
	return tts.VoiceProfile{ID: v.ID, Language: v.Language, SpeedFactor: v.SpeedFactor}
}
