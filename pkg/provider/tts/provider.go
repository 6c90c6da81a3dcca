// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server,
// ElevenLabs, or OpenAI) and turns one finished piece of text into one
// playable audio clip. Clips are short interpretations, so synthesis is a
// single request and the whole clip is returned at once.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns an encoded audio clip
	// (WAV or MP3, depending on the backend) that a browser can play
	// directly. Empty text yields a nil clip and a nil error.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
