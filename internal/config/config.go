// Package config provides the configuration schema, loader, and provider registry
// for the signbridge server.
package config

import (
	"time"

	"github.com/MrWong99/signbridge/internal/room"
)

// LogLevel controls log verbosity for the signbridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for signbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Pairing        PairingConfig        `yaml:"pairing"`
	Relay          RelayConfig          `yaml:"relay"`
	Interpretation InterpretationConfig `yaml:"interpretation"`
	Resilience     ResilienceConfig     `yaml:"resilience"`
	Providers      ProvidersConfig      `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// PairingConfig controls how rooms admit participants.
type PairingConfig struct {
	// Policy is "strict" (one member per role) or "anonymous".
	Policy room.Policy `yaml:"policy"`
}

// RelayConfig tunes the WebSocket transport.
type RelayConfig struct {
	// ReadLimitBytes caps the size of one inbound message. Video frames are
	// base64 images, so this is generous by default.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`

	// WriteTimeout bounds every write to a participant.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PingInterval is the keepalive period.
	PingInterval time.Duration `yaml:"ping_interval"`

	// AllowedOrigins lists host patterns accepted for cross-origin upgrades.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// InterpretationConfig controls sign and speech interpretation.
type InterpretationConfig struct {
	// Timeout bounds the external calls made for one message.
	Timeout time.Duration `yaml:"timeout"`

	// StableFrames is how many repeated predictions a label needs before it
	// is accepted. Zero accepts every prediction. Hot-reloadable.
	StableFrames int `yaml:"stable_frames"`

	// SpaceToken is the predictor label that closes a word.
	SpaceToken string `yaml:"space_token"`

	// Language is the BCP-47 tag used for speech recognition. Empty lets the
	// STT provider auto-detect.
	Language string `yaml:"language"`

	// Vocabulary lists known words and names that spelled words snap to.
	// Hot-reloadable.
	Vocabulary []string `yaml:"vocabulary"`

	// CorrectSentences enables LLM correction of flushed sentences. Requires
	// providers.llm.
	CorrectSentences bool `yaml:"correct_sentences"`
}

// ResilienceConfig configures the circuit breaker around every provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProvidersConfig declares which provider implementation to use for each
// interpretation stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Sign ProviderEntry `yaml:"sign"`
	STT  ProviderEntry `yaml:"stt"`
	TTS  ProviderEntry `yaml:"tts"`
	LLM  ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Voice is the speaking voice. Only used by TTS providers.
	Voice *VoiceConfig `yaml:"voice"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// VoiceConfig specifies the TTS voice parameters.
type VoiceConfig struct {
	// ID is the provider-specific voice identifier.
	ID string `yaml:"id"`

	// Language is the BCP-47 tag passed to multilingual voices.
	Language string `yaml:"language"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}
