package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/signbridge/internal/room"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8000"
	DefaultReadLimitBytes   = 4 << 20
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultInterpretTimeout = 15 * time.Second
	DefaultSpaceToken       = "SPACE"
	DefaultMaxFailures      = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultHalfOpenMax      = 3
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"sign": {"remote", "openai"},
	"stt":  {"whisper", "deepgram", "openai"},
	"tts":  {"coqui", "elevenlabs", "openai"},
	"llm":  {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued setting that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Pairing.Policy == "" {
		cfg.Pairing.Policy = room.PolicyStrict
	}
	if cfg.Relay.ReadLimitBytes == 0 {
		cfg.Relay.ReadLimitBytes = DefaultReadLimitBytes
	}
	if cfg.Relay.WriteTimeout == 0 {
		cfg.Relay.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Relay.PingInterval == 0 {
		cfg.Relay.PingInterval = DefaultPingInterval
	}
	if cfg.Interpretation.Timeout == 0 {
		cfg.Interpretation.Timeout = DefaultInterpretTimeout
	}
	if cfg.Interpretation.SpaceToken == "" {
		cfg.Interpretation.SpaceToken = DefaultSpaceToken
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = DefaultHalfOpenMax
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Pairing
	if cfg.Pairing.Policy != "" && !cfg.Pairing.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("pairing.policy %q is invalid; valid values: strict, anonymous", cfg.Pairing.Policy))
	}

	// Relay
	if cfg.Relay.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("relay.read_limit_bytes %d must not be negative", cfg.Relay.ReadLimitBytes))
	}
	if cfg.Relay.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.write_timeout %s must not be negative", cfg.Relay.WriteTimeout))
	}
	if cfg.Relay.PingInterval < 0 {
		errs = append(errs, fmt.Errorf("relay.ping_interval %s must not be negative", cfg.Relay.PingInterval))
	}

	// Interpretation
	if cfg.Interpretation.Timeout < 0 {
		errs = append(errs, fmt.Errorf("interpretation.timeout %s must not be negative", cfg.Interpretation.Timeout))
	}
	if cfg.Interpretation.StableFrames < 0 {
		errs = append(errs, fmt.Errorf("interpretation.stable_frames %d must not be negative", cfg.Interpretation.StableFrames))
	}
	if cfg.Interpretation.CorrectSentences && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("interpretation.correct_sentences requires providers.llm"))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	// Providers
	errs = append(errs, validateEntry("sign", "providers.sign", cfg.Providers.Sign)...)
	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("tts", "providers.tts", cfg.Providers.TTS)...)
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)

	// Provider availability warnings
	if cfg.Providers.Sign.Name == "" {
		slog.Warn("no sign provider configured; video frames will not be interpreted")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; audio clips will not be interpreted")
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider entry and its fallbacks.
func validateEntry(kind, prefix string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" {
		if len(e.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks requires %s.name", prefix, prefix))
		}
		return errs
	}
	validateProviderName(kind, e.Name)
	if e.Voice != nil && kind != "tts" {
		errs = append(errs, fmt.Errorf("%s.voice is only valid for tts providers", prefix))
	}
	if v := e.Voice; v != nil && v.SpeedFactor != 0 && (v.SpeedFactor < 0.5 || v.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("%s.voice.speed_factor %.2f is out of range [0.5, 2.0]", prefix, v.SpeedFactor))
	}
	for i, fb := range e.Fallbacks {
		fbPrefix := fmt.Sprintf("%s.fallbacks[%d]", prefix, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", fbPrefix))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks must not be nested", fbPrefix))
		}
		errs = append(errs, validateEntry(kind, fbPrefix, fb)...)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
