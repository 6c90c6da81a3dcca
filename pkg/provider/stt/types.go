package stt

// Transcript is the recognised text of one audio clip.
type Transcript struct {
	Text string

	// Confidence in [0, 1]. Zero when the backend does not report one.
	Confidence float64

	// Language is the language the backend detected or was asked for.
	Language string
}

// KeywordBoost biases recognition towards a word such as a participant's
// name. Boost uses the backend's own scale.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
