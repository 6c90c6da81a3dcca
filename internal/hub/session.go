package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/room"
)

const (
	directionSignToSpeech = "sign_to_speech"
	directionSpeechToText = "speech_to_text"
)

// session is the per-connection state owned by one Serve goroutine.
type session struct {
	hub  *Hub
	conn Conn
	log  *slog.Logger

	roomID string
	role   room.Role

	sentence *sentenceBuilder

	cleanupOnce sync.Once
}

// handshake reads the first message, which must be a valid join. Any failure
// is reported to the client, the connection is closed, and an error returned.
func (s *session) handshake(ctx context.Context) error {
	raw, err := s.conn.Receive(ctx)
	if err != nil {
		return fmt.Errorf("hub: handshake: %w", err)
	}

	var req JoinRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.reject(ctx, "malformed", protocolErrorf("malformed join message"))
	}
	if req.Type != TypeJoin {
		return s.reject(ctx, "not_join", protocolErrorf("first message must be join, got %q", req.Type))
	}
	if req.RoomID == "" || req.Role == "" {
		return s.reject(ctx, "invalid", protocolErrorf("join requires roomId and role"))
	}
	role, err := room.ParseRole(req.Role)
	if err != nil {
		return s.reject(ctx, "invalid", protocolErrorf("unknown role %q", req.Role))
	}

	res, err := s.hub.registry.Join(req.RoomID, s.conn, role)
	switch {
	case errors.Is(err, room.ErrRoomFull):
		return s.reject(ctx, "room_full", fmt.Errorf("hub: join: %w", err))
	case errors.Is(err, room.ErrRoleTaken):
		return s.reject(ctx, "role_taken", fmt.Errorf("hub: join: %w", err))
	case err != nil:
		return s.reject(ctx, "invalid", fmt.Errorf("hub: join: %w", err))
	}

	s.roomID = res.RoomID
	s.role = role
	s.log = s.log.With(slog.String("room_id", s.roomID), slog.String("role", string(role)))
	if res.Created {
		s.hub.metrics.ActiveRooms.Add(ctx, 1)
	}
	s.log.Info("joined room", slog.Bool("ready", res.Ready()))

	// Partner first: a user_left from a failed confirmation below must
	// always follow a user_joined.
	if res.Partner != nil {
		if err := s.hub.send(ctx, res.Partner.Conn, UserJoined{Type: TypeUserJoined, Role: string(role)}); err != nil {
			s.log.Debug("waiting partner unreachable", "err", err)
			s.hub.evict(ctx, res.Partner.Conn, "unreachable")
		}
	}
	if err := s.hub.send(ctx, s.conn, Connected{Type: TypeConnected, Role: string(role), Ready: res.Ready()}); err != nil {
		return fmt.Errorf("hub: handshake: %w", err)
	}
	return nil
}

// reject reports a failed join to the client and closes the connection.
func (s *session) reject(ctx context.Context, reason string, err error) error {
	s.hub.metrics.RecordJoinRejection(ctx, reason)
	s.log.Info("join rejected", slog.String("reason", reason), "err", err)
	_ = s.hub.send(ctx, s.conn, ErrorMessage{Type: TypeError, Message: clientMessage(err)})
	_ = s.conn.Close("join rejected")
	return fmt.Errorf("%w: %w", ErrJoinRejected, err)
}

// cleanup leaves the room and closes the connection. It runs once however
// the loop ended.
func (s *session) cleanup(ctx context.Context) {
	s.cleanupOnce.Do(func() {
		if res, ok := s.hub.registry.Leave(s.conn.ID()); ok {
			s.hub.afterLeave(ctx, res)
		}
		_ = s.conn.Close("")
	})
}

// dispatch handles one message. Errors never escape: protocol problems are
// reported to the sender, everything else is logged.
func (s *session) dispatch(ctx context.Context, raw []byte) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		s.reportError(ctx, protocolErrorf("malformed message"))
		return
	}

	var err error
	switch {
	case h.Type == TypeJoin:
		err = protocolErrorf("already joined room %q", s.roomID)
	case isSignaling(h.Type):
		s.relay(ctx, h.Type, raw)
	case h.Type == TypeVideoFrame:
		err = s.handleVideoFrame(ctx, raw)
	case h.Type == TypeAudio:
		err = s.handleAudio(ctx, raw)
	case h.Type == TypeEndSentence:
		err = s.handleEndSentence(ctx)
	case h.Type == "":
		err = protocolErrorf("missing message type")
	default:
		err = protocolErrorf("unknown message type %q", h.Type)
	}
	if err != nil {
		s.handleError(ctx, h.Type, err)
	}
}

func (s *session) handleError(ctx context.Context, msgType string, err error) {
	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		s.reportError(ctx, err)
	case errors.Is(err, ErrExternalService):
		s.hub.metrics.RecordDropped(ctx, msgType, "external_service")
		s.log.Warn("interpretation failed", slog.String("type", msgType), "err", err)
	default:
		s.log.Error("message handling failed", slog.String("type", msgType), "err", err)
	}
}

func (s *session) reportError(ctx context.Context, err error) {
	if sendErr := s.hub.send(ctx, s.conn, ErrorMessage{Type: TypeError, Message: clientMessage(err)}); sendErr != nil {
		s.log.Debug("could not report error to sender", "err", sendErr)
	}
}

// relay forwards a signaling payload to the partner without touching it.
func (s *session) relay(ctx context.Context, msgType string, raw []byte) {
	partner, ok := s.hub.registry.Partner(s.conn.ID())
	if !ok {
		s.hub.metrics.RecordDropped(ctx, msgType, "no_partner")
		s.log.Debug("no partner, dropping signaling message", slog.String("type", msgType))
		return
	}
	if err := s.hub.sendRaw(ctx, partner.Conn, raw); err != nil {
		s.hub.metrics.RecordDropped(ctx, msgType, "transport")
		s.hub.evict(ctx, partner.Conn, "unreachable")
		return
	}
	s.hub.metrics.RecordRelayed(ctx, msgType)
}

// authorize checks that the sender's role may send msgType.
func (s *session) authorize(msgType string, want room.Role) error {
	if s.role != want {
		return protocolErrorf("role %s may not send %s", s.role, msgType)
	}
	return nil
}

func (s *session) handleVideoFrame(ctx context.Context, raw []byte) (err error) {
	if err := s.authorize(TypeVideoFrame, room.RoleAccessibility); err != nil {
		return err
	}
	var p MediaPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocolErrorf("malformed video_frame")
	}
	frame, err := decodeMedia(p.Data)
	if err != nil {
		return err
	}
	if _, ok := s.hub.registry.Partner(s.conn.ID()); !ok {
		s.hub.metrics.RecordDropped(ctx, TypeVideoFrame, "no_partner")
		return nil
	}
	if s.hub.predictor == nil {
		s.hub.metrics.RecordDropped(ctx, TypeVideoFrame, "no_predictor")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.hub.interpretTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "hub.video_frame", s.spanAttrs()...)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	label, found, err := s.hub.predictor.Predict(ctx, frame)
	observe.ObserveDuration(ctx, s.hub.metrics.PredictDuration, start)
	if err != nil {
		return externalErr("predict", err)
	}
	if !found || label == "" {
		return nil
	}

	accepted, ok := s.sentence.observe(label, s.hub.StableFrames())
	if !ok {
		return nil
	}

	text := accepted
	if s.sentence.isSpace(accepted) {
		word := s.sentence.takeWord()
		if word == "" {
			return nil
		}
		text = s.correct(ctx, word)
		s.sentence.commitWord(text)
	} else {
		s.sentence.appendLabel(accepted)
	}

	var sentence string
	if s.hub.StableFrames() > 0 || s.hub.corrector != nil {
		sentence = s.sentence.sentence()
	}
	return s.deliver(ctx, TypeVideoFrame, text, sentence, directionSignToSpeech)
}

func (s *session) handleAudio(ctx context.Context, raw []byte) (err error) {
	if err := s.authorize(TypeAudio, room.RoleNormal); err != nil {
		return err
	}
	var p MediaPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocolErrorf("malformed audio")
	}
	clip, err := decodeMedia(p.Data)
	if err != nil {
		return err
	}
	if _, ok := s.hub.registry.Partner(s.conn.ID()); !ok {
		s.hub.metrics.RecordDropped(ctx, TypeAudio, "no_partner")
		return nil
	}
	if s.hub.codec == nil {
		s.hub.metrics.RecordDropped(ctx, TypeAudio, "no_codec")
		return nil
	}
	if t, ok := s.hub.codec.(Transcriber); ok && !t.HasSTT() {
		s.hub.metrics.RecordDropped(ctx, TypeAudio, "no_stt")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.hub.interpretTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "hub.audio", s.spanAttrs()...)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	text, err := s.hub.codec.SpeechToText(ctx, clip)
	observe.ObserveDuration(ctx, s.hub.metrics.STTDuration, start)
	if err != nil {
		return externalErr("speech to text", err)
	}
	if text == "" {
		return nil
	}
	return s.deliver(ctx, TypeAudio, text, "", directionSpeechToText)
}

// handleEndSentence flushes the sentence assembled from signs to the partner.
func (s *session) handleEndSentence(ctx context.Context) error {
	if err := s.authorize(TypeEndSentence, room.RoleAccessibility); err != nil {
		return err
	}
	defer s.sentence.reset()

	ctx, cancel := context.WithTimeout(ctx, s.hub.interpretTimeout)
	defer cancel()

	if w := s.sentence.takeWord(); w != "" {
		s.sentence.commitWord(s.correct(ctx, w))
	}
	text := s.sentence.sentence()
	if text == "" {
		return nil
	}
	if _, ok := s.hub.registry.Partner(s.conn.ID()); !ok {
		s.hub.metrics.RecordDropped(ctx, TypeEndSentence, "no_partner")
		return nil
	}
	text = s.correct(ctx, text)
	return s.deliver(ctx, TypeEndSentence, text, text, directionSignToSpeech)
}

func (s *session) spanAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		observe.Attr("conn_id", s.conn.ID()),
		observe.Attr("room_id", s.roomID),
		observe.Attr("role", string(s.role)),
	}
}

// correct runs the corrector and falls back to the input on failure.
func (s *session) correct(ctx context.Context, text string) string {
	if s.hub.corrector == nil {
		return text
	}
	start := time.Now()
	out, err := s.hub.corrector.Correct(ctx, text)
	observe.ObserveDuration(ctx, s.hub.metrics.CorrectionDuration, start)
	if err != nil {
		s.log.Warn("correction failed", "err", err)
	}
	if out == "" {
		return text
	}
	return out
}

// deliver synthesizes speech for text and sends the interpretation to the
// current partner. Without a codec the interpretation carries no audio; a
// failing codec drops the interpretation.
//
// The partner is looked up only after synthesis: the room may have changed
// while the external calls ran.
func (s *session) deliver(ctx context.Context, msgType, text, sentence, direction string) error {
	var audio []byte
	if s.hub.codec != nil {
		start := time.Now()
		var err error
		audio, err = s.hub.codec.TextToSpeech(ctx, text)
		observe.ObserveDuration(ctx, s.hub.metrics.TTSDuration, start)
		if err != nil {
			return externalErr("text to speech", err)
		}
	}

	partner, ok := s.hub.registry.Partner(s.conn.ID())
	if !ok {
		s.hub.metrics.RecordDropped(ctx, msgType, "no_partner")
		return nil
	}
	if err := s.hub.send(ctx, partner.Conn, newInterpretation(text, audio, sentence)); err != nil {
		s.hub.evict(context.WithoutCancel(ctx), partner.Conn, "unreachable")
		return nil
	}
	s.hub.metrics.RecordInterpretation(ctx, direction)
	return nil
}

// clientMessage converts an error into the text shown to the client.
func clientMessage(err error) string {
	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		return pe.Msg
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrRoleTaken):
		return "role already taken in this room"
	case errors.Is(err, room.ErrInvalidJoin):
		return "invalid join request"
	default:
		return "internal error"
	}
}
