package tts

// VoiceProfile selects the voice used for synthesis.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. For Coqui XTTS it is the
	// speaker reference; for OpenAI it is a voice name such as "alloy".
	ID string

	// Language is the synthesis language (e.g., "en"). Empty uses the
	// provider default.
	Language string

	// SpeedFactor adjusts speaking rate (0.5–2.0). Zero means the default.
	SpeedFactor float64
}
