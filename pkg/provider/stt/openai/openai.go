// Package openai implements stt.Provider with the OpenAI audio transcription
// API. Any server exposing a compatible /audio/transcriptions endpoint
// (faster-whisper-server, LocalAI) can be targeted with WithBaseURL.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/signbridge/pkg/provider/stt"
)

const defaultModel = "whisper-1"

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the transcription model (default "whisper-1").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithLanguage sets the default language when a request carries none.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// Provider transcribes clips through the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	baseURL  string
	language string
}

// New creates a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, nil
	}
	data, format := stt.AsContainer(req)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), "audio."+stt.FileExtension(format), stt.MIMEType(format)),
		Model: oai.AudioModel(p.model),
	}
	if lang := baseLanguage(req.Language, p.language); lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt := keywordPrompt(req.Keywords); prompt != "" {
		params.Prompt = oai.String(prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: baseLanguage(req.Language, p.language),
	}, nil
}

// baseLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects.
func baseLanguage(lang, fallback string) string {
	if lang == "" {
		lang = fallback
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

// keywordPrompt turns keyword hints into a prompt that biases recognition.
func keywordPrompt(kw []stt.KeywordBoost) string {
	if len(kw) == 0 {
		return ""
	}
	words := make([]string, 0, len(kw))
	for _, k := range kw {
		if k.Keyword != "" {
			words = append(words, k.Keyword)
		}
	}
	return strings.Join(words, ", ")
}
