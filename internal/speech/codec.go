// Package speech adapts an STT and a TTS provider into the speech codec used
// by the hub.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/signbridge/pkg/provider/stt"
	"github.com/MrWong99/signbridge/pkg/provider/tts"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
	defaultBoost      = 2.0
)

// ErrNoSTT is returned by [Codec.SpeechToText] when no STT provider is set.
var ErrNoSTT = errors.New("speech: no speech-to-text provider configured")

// Option configures a [Codec].
type Option func(*Codec)

// WithSTT sets the transcription provider.
func WithSTT(p stt.Provider) Option {
	return func(c *Codec) { c.stt = p }
}

// WithTTS sets the synthesis provider and the voice it speaks with.
func WithTTS(p tts.Provider, voice tts.VoiceProfile) Option {
	return func(c *Codec) {
		c.tts = p
		c.voice = voice
	}
}

// WithLanguage sets the recognition language (BCP-47). Empty means
// auto-detect.
func WithLanguage(lang string) Option {
	return func(c *Codec) { c.language = lang }
}

// WithPCMFormat describes clips that arrive as raw PCM without a container.
// Defaults to 16 kHz mono.
func WithPCMFormat(sampleRate, channels int) Option {
	return func(c *Codec) {
		if sampleRate > 0 {
			c.sampleRate = sampleRate
		}
		if channels > 0 {
			c.channels = channels
		}
	}
}

// WithKeywords sets a source of recognition hints, queried on every clip.
func WithKeywords(fn func() []string) Option {
	return func(c *Codec) { c.keywords.Store(&fn) }
}

// Codec converts clips to text and text to clips. Either direction may be
// left unconfigured. It is safe for concurrent use.
type Codec struct {
	stt        stt.Provider
	tts        tts.Provider
	voice      tts.VoiceProfile
	language   string
	sampleRate int
	channels   int
	keywords   atomic.Pointer[func() []string]
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SpeechToText transcribes one clip. A clip without speech yields "".
func (c *Codec) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	if c.stt == nil {
		return "", ErrNoSTT
	}
	if len(audio) == 0 {
		return "", nil
	}
	t, err := c.stt.Transcribe(ctx, stt.Request{
		Audio:      audio,
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		Language:   c.language,
		Keywords:   c.boosts(),
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe: %w", err)
	}
	return strings.TrimSpace(t.Text), nil
}

// TextToSpeech synthesizes text with the configured voice. Without a TTS
// provider it returns nil audio and no error.
func (c *Codec) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if c.tts == nil || text == "" {
		return nil, nil
	}
	audio, err := c.tts.Synthesize(ctx, text, c.voice)
	if err != nil {
		return nil, fmt.Errorf("speech: synthesize: %w", err)
	}
	return audio, nil
}

// HasSTT reports whether transcription is configured.
func (c *Codec) HasSTT() bool { return c.stt != nil }

// HasTTS reports whether synthesis is configured.
func (c *Codec) HasTTS() bool { return c.tts != nil }

func (c *Codec) boosts() []stt.KeywordBoost {
	fn := c.keywords.Load()
	if fn == nil || *fn == nil {
		return nil
	}
	words := (*fn)()
	if len(words) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, 0, len(words))
	for _, w := range words {
		out = append(out, stt.KeywordBoost{Keyword: w, Boost: defaultBoost})
	}
	return out
}
