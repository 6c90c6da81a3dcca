package room

import (
	"context"
	"errors"
)

// ErrTransport is wrapped by [Conn] implementations when the underlying
// channel is closed or unreachable. Callers treat it as a peer disconnect and
// never retry the send.
var ErrTransport = errors.New("room: transport closed")

// Conn is one live transport session with a remote participant.
//
// Send and Close must be safe for concurrent use: a member's connection is
// written to both by its own receive loop and by its partner's.
type Conn interface {
	// ID returns the opaque identifier assigned when the transport accepted
	// the connection. It is unique for the lifetime of the process.
	ID() string

	// Send writes one serialized envelope to the remote peer.
	Send(ctx context.Context, msg []byte) error

	// Close terminates the session. reason is surfaced to the peer where the
	// transport supports it. Close is idempotent.
	Close(reason string) error
}
