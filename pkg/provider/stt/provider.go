// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// Deepgram, or OpenAI) and exposes a uniform request/response interface. Each
// call transcribes one complete audio clip as sent by a participant; clips
// are short, so no streaming session is kept open between calls.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request is one clip to transcribe.
type Request struct {
	// Audio is the clip. It is either a self-describing container (WAV, WebM,
	// Ogg, MP3) or raw 16-bit little-endian PCM described by SampleRate and
	// Channels. Use [DetectFormat] to tell them apart.
	Audio []byte

	// SampleRate is the rate of raw PCM audio in Hz. Ignored for containers.
	SampleRate int

	// Channels is the channel count of raw PCM audio. Ignored for containers.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for uncommon words such as names.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one audio clip into text. A clip without speech
	// yields a Transcript with empty Text and a nil error.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
