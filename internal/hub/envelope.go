package hub

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Envelope types exchanged over a participant connection.
const (
	TypeJoin           = "join"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeICECandidate   = "ice-candidate"
	TypeVideoFrame     = "video_frame"
	TypeAudio          = "audio"
	TypeEndSentence    = "end_sentence"
	TypeConnected      = "connected"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeInterpretation = "interpretation"
	TypeError          = "error"
)

// header is decoded first to route a raw message by type.
type header struct {
	Type string `json:"type"`
}

// JoinRequest is the first message every connection must send.
type JoinRequest struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
}

// MediaPayload carries a base64 video frame or audio clip.
type MediaPayload struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Connected acknowledges a successful join.
type Connected struct {
	Type  string `json:"type"`
	Role  string `json:"role"`
	Ready bool   `json:"ready"`
}

// UserJoined tells a waiting member that a partner arrived.
type UserJoined struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// UserLeft tells the remaining member that the partner is gone.
type UserLeft struct {
	Type string `json:"type"`
}

// Interpretation carries translated content to the partner. Audio is encoded
// as base64 and is JSON null when no speech was synthesized.
type Interpretation struct {
	Type     string  `json:"type"`
	Text     string  `json:"text"`
	Audio    *string `json:"audio"`
	Sentence string  `json:"sentence,omitempty"`
}

// ErrorMessage reports a problem with a message back to its sender.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newInterpretation(text string, audio []byte, sentence string) Interpretation {
	msg := Interpretation{Type: TypeInterpretation, Text: text, Sentence: sentence}
	if len(audio) > 0 {
		enc := base64.StdEncoding.EncodeToString(audio)
		msg.Audio = &enc
	}
	return msg
}

// isSignaling reports whether msgType is a WebRTC signaling message that is
// forwarded verbatim.
func isSignaling(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// decodeMedia decodes a base64 payload. Browser data URLs
// ("data:image/jpeg;base64,...") are accepted and the prefix is stripped.
func decodeMedia(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		if i := strings.IndexByte(data, ','); i >= 0 {
			data = data[i+1:]
		}
	}
	if data == "" {
		return nil, protocolErrorf("empty media payload")
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, protocolErrorf("invalid base64 payload")
	}
	return b, nil
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
