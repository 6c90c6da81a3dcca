// Package transport carries participant sessions over WebSocket.
//
// [Handler] upgrades HTTP requests with coder/websocket and hands each
// accepted [Conn] to a serve function that owns it for its lifetime. Conn
// satisfies the hub's connection interface: one reader, many concurrent
// writers.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/signbridge/internal/room"
)

// maxCloseReason is the longest close reason a control frame can carry.
const maxCloseReason = 123

// Conn is one accepted WebSocket session. Send and Close are safe for
// concurrent use; Receive must only be called from one goroutine.
type Conn struct {
	id         string
	remoteAddr string
	ws         *websocket.Conn
	log        *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id, remoteAddr string, ws *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		id:         id,
		remoteAddr: remoteAddr,
		ws:         ws,
		log:        log,
		closed:     make(chan struct{}),
	}
}

// ID returns the identifier assigned on accept.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address as reported by the HTTP server.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Receive blocks until the next message arrives. Text and binary messages are
// both returned as-is. Any failure, including an oversized message, closes
// the session and wraps [room.ErrTransport].
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		c.markClosed()
		return nil, fmt.Errorf("transport: receive: %w: %w", room.ErrTransport, err)
	}
	return data, nil
}

// Send writes msg as one text message.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("transport: send: %w", room.ErrTransport)
	default:
	}
	if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("transport: send: %w: %w", room.ErrTransport, err)
	}
	return nil
}

// Close sends a normal closure with reason and releases the session. It is
// idempotent.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		err = c.ws.Close(websocket.StatusNormalClosure, reason)
	})
	return err
}

// Done is closed once the session is closed locally or a read failed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.CloseNow()
	})
}

// keepalive pings the peer every interval until the session ends. A missed
// pong closes the session, which unblocks Receive.
func (c *Conn) keepalive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Debug("ping failed, closing", "err", err)
				c.markClosed()
				return
			}
		}
	}
}
