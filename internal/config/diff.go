package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StableFramesChanged bool
	NewStableFrames     int

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired lists settings that changed but only take effect after
	// a restart (e.g. "server.listen_addr", "providers").
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.StableFramesChanged && !d.VocabularyChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Interpretation.StableFrames != new.Interpretation.StableFrames {
		d.StableFramesChanged = true
		d.NewStableFrames = new.Interpretation.StableFrames
	}

	if !slices.Equal(old.Interpretation.Vocabulary, new.Interpretation.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Interpretation.Vocabulary)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Pairing != new.Pairing {
		d.RestartRequired = append(d.RestartRequired, "pairing")
	}
	if !relayEqual(old.Relay, new.Relay) {
		d.RestartRequired = append(d.RestartRequired, "relay")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	oi, ni := old.Interpretation, new.Interpretation
	if oi.Timeout != ni.Timeout || oi.SpaceToken != ni.SpaceToken || oi.Language != ni.Language || oi.CorrectSentences != ni.CorrectSentences {
		d.RestartRequired = append(d.RestartRequired, "interpretation")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func relayEqual(a, b RelayConfig) bool {
	return a.ReadLimitBytes == b.ReadLimitBytes &&
		a.WriteTimeout == b.WriteTimeout &&
		a.PingInterval == b.PingInterval &&
		slices.Equal(a.AllowedOrigins, b.AllowedOrigins)
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.Sign, b.Sign) && entryEqual(a.STT, b.STT) &&
		entryEqual(a.TTS, b.TTS) && entryEqual(a.LLM, b.LLM)
}

// entryEqual compares the fields of two entries that affect construction.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if (a.Voice == nil) != (b.Voice == nil) || (a.Voice != nil && *a.Voice != *b.Voice) {
		return false
	}
	if !reflect.DeepEqual(a.Options, b.Options) {
		return false
	}
	return slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual)
}
