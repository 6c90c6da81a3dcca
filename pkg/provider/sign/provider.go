// Package sign defines the Provider interface for sign-language recognisers.
//
// A sign provider looks at one camera frame and names the sign it shows, if
// any. Recognisers range from a dedicated classifier service to a general
// vision model; the interface hides the difference.
//
// Implementations must be safe for concurrent use.
package sign

import (
	"context"
	"strings"
)

// NoHands is the label classifiers emit when no hand is visible. Providers
// report it as "no sign".
const NoHands = "No hands detected"

// Provider is the abstraction over any sign recogniser.
type Provider interface {
	// Predict classifies one encoded image (JPEG, PNG or WebP). ok is false
	// when the frame shows no recognisable sign; err is reserved for failures
	// of the recogniser itself.
	Predict(ctx context.Context, frame []byte) (label string, ok bool, err error)
}

// Normalize trims a raw label and reports whether it names a sign.
func Normalize(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, NoHands) || strings.EqualFold(label, "none") {
		return "", false
	}
	return label, true
}
