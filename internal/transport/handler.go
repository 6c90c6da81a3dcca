package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/signbridge/internal/observe"
)

const (
	defaultReadLimit    = 4 << 20
	defaultPingInterval = 30 * time.Second
)

// ServeFunc owns an accepted connection until it returns. The connection is
// closed afterwards if the serve function did not close it.
type ServeFunc func(ctx context.Context, c *Conn) error

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithReadLimit caps the size of one inbound message. Default: 4 MiB.
func WithReadLimit(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithPingInterval sets the keepalive period. Zero or negative disables it.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *Handler) { h.pingInterval = d }
}

// WithAllowedOrigins accepts cross-origin upgrades from hosts matching the
// given patterns (path.Match syntax, e.g. "*.example.com").
func WithAllowedOrigins(patterns ...string) HandlerOption {
	return func(h *Handler) { h.origins = append(h.origins, patterns...) }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

// Handler upgrades requests to WebSocket sessions.
type Handler struct {
	serve        ServeFunc
	readLimit    int64
	pingInterval time.Duration
	origins      []string
	log          *slog.Logger

	wg sync.WaitGroup
}

var _ http.Handler = (*Handler)(nil)

// NewHandler returns a Handler that passes every accepted session to serve.
func NewHandler(serve ServeFunc, opts ...HandlerOption) *Handler {
	h := &Handler{
		serve:        serve,
		readLimit:    defaultReadLimit,
		pingInterval: defaultPingInterval,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP accepts the upgrade and blocks until the session ends. The
// session is bound to the request context, so cancelling the server's base
// context ends every session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context(), h.log).Debug("websocket upgrade rejected", "err", err, "remote", r.RemoteAddr)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()

	ws.SetReadLimit(h.readLimit)

	id := uuid.NewString()
	log := h.log.With(slog.String("conn_id", id))
	c := newConn(id, r.RemoteAddr, ws, log)
	log.Debug("connection accepted", "remote", r.RemoteAddr, "user_agent", r.UserAgent())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.keepalive(ctx, h.pingInterval)

	if err := h.serve(ctx, c); err != nil {
		log.Warn("session ended with error", "err", err)
	}
	_ = c.Close("")
}

// Wait blocks until every session served by h has ended.
func (h *Handler) Wait() {
	h.wg.Wait()
}
