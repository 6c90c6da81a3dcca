// Package hub implements the per-connection message dispatcher.
//
// [Hub.Serve] owns one participant connection for its whole lifetime: it
// performs the join handshake against a [room.Registry], then processes
// envelopes strictly in arrival order. Signaling messages are forwarded to the
// partner byte for byte; video frames and audio clips are translated through
// the injected [SignPredictor] and [SpeechCodec] and delivered to the partner
// as interpretation envelopes.
//
// Failures while handling one message are isolated to that message. Only a
// transport failure or an invalid first message ends the loop, and the
// deferred clean-up removes the connection from its room exactly once.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/room"
)

const (
	defaultInterpretTimeout = 15 * time.Second
	defaultSendTimeout      = 10 * time.Second
	defaultSpaceToken       = "SPACE"
)

// Conn is a participant connection as seen by the hub.
type Conn interface {
	room.Conn

	// Receive blocks until the next message arrives. It returns an error
	// wrapping [room.ErrTransport] once the connection is closed.
	Receive(ctx context.Context) ([]byte, error)
}

// SignPredictor turns one video frame into a sign label. ok is false when the
// frame contains no recognisable sign.
type SignPredictor interface {
	Predict(ctx context.Context, image []byte) (label string, ok bool, err error)
}

// SpeechCodec converts between speech and text. An empty transcript or nil
// audio means the codec produced nothing for the input.
type SpeechCodec interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}

// Transcriber is implemented by a [SpeechCodec] that may lack its
// speech-to-text half. Audio is dropped without a call when HasSTT is false.
type Transcriber interface {
	HasSTT() bool
}

// Corrector fixes spelling in words and sentences assembled from signs. When
// it fails part way, a non-empty result is still used alongside the error.
type Corrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

// Option configures a [Hub].
type Option func(*Hub)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithPredictor sets the sign predictor used for video frames.
func WithPredictor(p SignPredictor) Option {
	return func(h *Hub) { h.predictor = p }
}

// WithSpeechCodec sets the speech codec used for audio and synthesized speech.
func WithSpeechCodec(c SpeechCodec) Option {
	return func(h *Hub) { h.codec = c }
}

// WithCorrector enables spelling correction of words closed by the space
// token and of flushed sentences.
func WithCorrector(c Corrector) Option {
	return func(h *Hub) { h.corrector = c }
}

// WithInterpretTimeout bounds every external call made for one message.
func WithInterpretTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.interpretTimeout = d
		}
	}
}

// WithSendTimeout bounds every write to a participant connection.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithStableFrames sets how many repeated predictions a label needs before it
// is accepted. Zero accepts every prediction.
func WithStableFrames(n int) Option {
	return func(h *Hub) { h.stableFrames.Store(int64(max(n, 0))) }
}

// WithSpaceToken sets the predictor label that closes a word.
func WithSpaceToken(tok string) Option {
	return func(h *Hub) { h.spaceToken = tok }
}

// Hub dispatches messages for every participant connection. A single Hub is
// shared by all connections and is safe for concurrent use.
type Hub struct {
	registry *room.Registry
	log      *slog.Logger
	metrics  *observe.Metrics

	predictor SignPredictor
	codec     SpeechCodec
	corrector Corrector

	interpretTimeout time.Duration
	sendTimeout      time.Duration
	spaceToken       string
	stableFrames     atomic.Int64
}

// New creates a Hub that admits connections into registry.
func New(registry *room.Registry, opts ...Option) *Hub {
	h := &Hub{
		registry:         registry,
		log:              slog.Default(),
		interpretTimeout: defaultInterpretTimeout,
		sendTimeout:      defaultSendTimeout,
		spaceToken:       defaultSpaceToken,
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// SetStableFrames changes the stability threshold for subsequent frames on all
// connections.
func (h *Hub) SetStableFrames(n int) {
	h.stableFrames.Store(int64(max(n, 0)))
}

// StableFrames returns the current stability threshold.
func (h *Hub) StableFrames() int {
	return int(h.stableFrames.Load())
}

// Registry returns the room registry the hub admits connections into.
func (h *Hub) Registry() *room.Registry { return h.registry }

// Serve runs the receive loop for c until the connection closes, ctx is
// cancelled, or the join handshake fails. The connection is always removed
// from its room and closed before Serve returns.
func (h *Hub) Serve(ctx context.Context, c Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.metrics.ActiveConnections.Add(ctx, 1)
	defer h.metrics.ActiveConnections.Add(context.WithoutCancel(ctx), -1)

	s := &session{
		hub:      h,
		conn:     c,
		log:      h.log.With(slog.String("conn_id", c.ID())),
		sentence: newSentenceBuilder(h.spaceToken),
	}
	defer s.cleanup(context.WithoutCancel(ctx))

	if err := s.handshake(ctx); err != nil {
		return err
	}

	for {
		raw, err := c.Receive(ctx)
		if err != nil {
			if errors.Is(err, room.ErrTransport) || ctx.Err() != nil {
				s.log.Debug("connection closed", "err", err)
				return nil
			}
			return err
		}
		s.dispatch(ctx, raw)
	}
}

// send encodes v and writes it to c. A failure means c is gone; callers
// evict the member rather than retrying.
func (h *Hub) send(ctx context.Context, c room.Conn, v any) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	return h.sendRaw(ctx, c, b)
}

func (h *Hub) sendRaw(ctx context.Context, c room.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	return c.Send(ctx, b)
}

// evict removes an unreachable member from its room, closes it, and tells the
// member left behind. It is safe to call for a connection that already left.
func (h *Hub) evict(ctx context.Context, c room.Conn, reason string) {
	res, ok := h.registry.Leave(c.ID())
	_ = c.Close(reason)
	if !ok {
		return
	}
	h.afterLeave(ctx, res)
}

// afterLeave updates metrics and notifies the remaining member of a room.
func (h *Hub) afterLeave(ctx context.Context, res room.LeaveResult) {
	log := h.log.With(slog.String("room_id", res.RoomID), slog.String("conn_id", res.Left.Conn.ID()))
	if res.Deleted {
		h.metrics.ActiveRooms.Add(ctx, -1)
		log.Info("room closed")
		return
	}
	log.Info("member left", slog.String("role", string(res.Left.Role)))
	if res.Remaining == nil {
		return
	}
	if err := h.send(ctx, res.Remaining.Conn, UserLeft{Type: TypeUserLeft}); err != nil {
		log.Debug("partner unreachable while notifying departure", "err", err)
		h.evict(ctx, res.Remaining.Conn, "unreachable")
	}
}
