// Package mock provides a test double for the sign.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/signbridge/pkg/provider/sign"
)

var _ sign.Provider = (*Provider)(nil)

// Provider is a mock implementation of sign.Provider.
type Provider struct {
	mu sync.Mutex

	// Labels are returned in order, one per call. Once exhausted, Label is
	// returned. An empty string means "no sign".
	Labels []string

	// Label is returned when Labels is exhausted.
	Label string

	// Err, if non-nil, is returned as the error from Predict.
	Err error

	// Frames records a copy of every frame passed to Predict.
	Frames [][]byte
}

// Predict records the frame and returns the next configured label.
func (p *Provider) Predict(_ context.Context, frame []byte) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Frames = append(p.Frames, append([]byte(nil), frame...))
	if p.Err != nil {
		return "", false, p.Err
	}
	label := p.Label
	if len(p.Labels) > 0 {
		label, p.Labels = p.Labels[0], p.Labels[1:]
	}
	return label, label != "", nil
}

// CallCount returns the number of Predict calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Frames)
}
