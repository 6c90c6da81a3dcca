// Package remote implements sign.Provider against an HTTP classifier service.
//
// The service receives one frame per request:
//
//	POST {baseURL}/predict
//	{"frame": "<base64 image>"}
//
// and answers with the predicted label and its confidence:
//
//	{"prediction": "H", "confidence": 0.93}
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/signbridge/pkg/provider/sign"
)

const (
	predictEndpoint = "/predict"
	defaultTimeout  = 10 * time.Second
)

var _ sign.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithMinConfidence discards predictions below c (0.0–1.0).
func WithMinConfidence(c float64) Option {
	return func(p *Provider) {
		p.minConfidence = c
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// Provider classifies frames with a remote service.
type Provider struct {
	baseURL       string
	apiKey        string
	minConfidence float64
	httpClient    *http.Client
}

// New creates a Provider targeting baseURL (e.g., "http://localhost:5000").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("sign remote: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type predictRequest struct {
	Frame string `json:"frame"`
}

type predictResponse struct {
	Prediction string   `json:"prediction"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error"`
}

// Predict implements sign.Provider.
func (p *Provider) Predict(ctx context.Context, frame []byte) (string, bool, error) {
	if len(frame) == 0 {
		return "", false, nil
	}
	body, err := json.Marshal(predictRequest{Frame: base64.StdEncoding.EncodeToString(frame)})
	if err != nil {
		return "", false, fmt.Errorf("sign remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+predictEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("sign remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("sign remote: POST %s: %w", predictEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("sign remote: POST %s returned status %d: %s", predictEndpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", false, fmt.Errorf("sign remote: decode response: %w", err)
	}
	if pr.Error != "" {
		return "", false, fmt.Errorf("sign remote: classifier error: %s", pr.Error)
	}
	if pr.Confidence != nil && *pr.Confidence < p.minConfidence {
		return "", false, nil
	}
	label, ok := sign.Normalize(pr.Prediction)
	return label, ok, nil
}
