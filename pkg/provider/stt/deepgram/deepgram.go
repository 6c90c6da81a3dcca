// Package deepgram implements stt.Provider using Deepgram's live transcription
// WebSocket API.
//
// A clip is streamed over a fresh WebSocket connection in fixed-size chunks,
// followed by a CloseStream control message. Deepgram then flushes its final
// results and sends a Metadata message, after which the connection is closed.
// All final results are joined into a single transcript.
//
// Reference: https://developers.deepgram.com/reference/listen-live
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/signbridge/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkSize is the number of audio bytes written per WebSocket frame.
	chunkSize = 8 * 1024
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Deepgram Provider.
type Option func(*Provider)

// WithModel overrides the Deepgram model (default: "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage overrides the default BCP-47 language code (default: "en").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the sample rate assumed for raw PCM clips (default: 16000).
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the WebSocket endpoint. Intended for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by Deepgram.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, nil
	}

	wsURL, err := p.buildURL(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- sendClip(ctx, conn, req.Audio)
	}()

	var (
		parts []string
		conf  float64
		n     int
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}
		res, done := parseDeepgramResponse(msg)
		if done {
			break
		}
		if res.Text != "" {
			parts = append(parts, res.Text)
			conf += res.Confidence
			n++
		}
	}
	if err := <-writeErr; err != nil {
		return stt.Transcript{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	t := stt.Transcript{Text: strings.Join(parts, " "), Language: req.Language}
	if n > 0 {
		t.Confidence = conf / float64(n)
	}
	return t, nil
}

// sendClip streams audio followed by the CloseStream control message.
func sendClip(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	for off := 0; off < len(audio); off += chunkSize {
		end := min(off+chunkSize, len(audio))
		if err := conn.Write(ctx, websocket.MessageBinary, audio[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// buildURL constructs the Deepgram WebSocket URL with query parameters.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")

	if stt.DetectFormat(req.Audio) == stt.FormatPCM {
		sr := req.SampleRate
		if sr <= 0 {
			sr = p.sampleRate
		}
		ch := req.Channels
		if ch <= 0 {
			ch = 1
		}
		q.Set("encoding", "linear16")
		q.Set("sample_rate", strconv.Itoa(sr))
		q.Set("channels", strconv.Itoa(ch))
	}

	for _, kw := range req.Keywords {
		q.Add("keyterm", kw.Keyword)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON envelope sent by Deepgram for each result.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse extracts a final result from a message. done is true
// for the Metadata message that ends the stream. Interim results and other
// message types yield an empty transcript.
func parseDeepgramResponse(data []byte) (t stt.Transcript, done bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	switch resp.Type {
	case "Metadata":
		return stt.Transcript{}, true
	case "Results":
	default:
		return stt.Transcript{}, false
	}
	if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return stt.Transcript{
		Text:       strings.TrimSpace(alt.Transcript),
		Confidence: alt.Confidence,
	}, false
}
