// Package openai implements sign.Provider with an OpenAI vision model.
//
// Each frame is sent as an inline image together with a short instruction to
// name the fingerspelled letter or sign. This is slower and costlier than a
// dedicated classifier but needs no trained model. Any OpenAI-compatible
// server with vision support can be targeted with WithBaseURL.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/signbridge/pkg/provider/sign"
)

const (
	defaultModel = "gpt-4o-mini"

	systemPrompt = "You read sign language from a single camera frame. " +
		"Answer with only the sign shown: one letter A-Z for fingerspelling, SPACE for the space gesture, " +
		"or a single word for a whole-word sign. Answer NONE if no hand or no sign is visible."
)

var _ sign.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the vision model (default "gpt-4o-mini").
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

// WithLabels restricts answers to labels. Anything else is reported as no
// sign.
func WithLabels(labels []string) Option {
	return func(p *Provider) {
		p.labels = make(map[string]string, len(labels))
		for _, l := range labels {
			p.labels[strings.ToUpper(l)] = l
		}
	}
}

// Provider recognises signs with a vision model.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
	labels  map[string]string
}

// New creates a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sign openai: apiKey must not be empty")
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

// Predict implements sign.Provider.
func (p *Provider) Predict(ctx context.Context, frame []byte) (string, bool, error) {
	if len(frame) == 0 {
		return "", false, nil
	}
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(frame))
	if err != nil {
		return "", false, fmt.Errorf("sign openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", false, fmt.Errorf("sign openai: empty choices in response")
	}
	return p.parseLabel(resp.Choices[0].Message.Content)
}

func (p *Provider) buildParams(frame []byte) oai.ChatCompletionNewParams {
	image := oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
		URL:    dataURL(frame),
		Detail: "low",
	})
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart("Which sign is this?"),
				image,
			}),
		},
		MaxCompletionTokens: param.NewOpt(int64(8)),
		Temperature:         param.NewOpt(0.0),
	}
}

// parseLabel turns the model's free-text answer into a label.
func (p *Provider) parseLabel(answer string) (string, bool, error) {
	answer = strings.Trim(strings.TrimSpace(answer), `."'`)
	if fields := strings.Fields(answer); len(fields) > 0 {
		answer = fields[0]
	}
	label, ok := sign.Normalize(answer)
	if !ok {
		return "", false, nil
	}
	if len(label) == 1 {
		label = strings.ToUpper(label)
	}
	if p.labels != nil {
		canonical, known := p.labels[strings.ToUpper(label)]
		if !known {
			return "", false, nil
		}
		label = canonical
	}
	return label, true, nil
}

// dataURL encodes frame as an inline image URL.
func dataURL(frame []byte) string {
	mime := http.DetectContentType(frame)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(frame)
}
