package hub

import (
	"errors"
	"fmt"
)

// ErrExternalService wraps failures of the sign predictor, speech codec, or
// corrector. These errors never terminate a connection.
var ErrExternalService = errors.New("hub: external service failed")

// ErrJoinRejected wraps every handshake failure that was reported to the
// client before its connection was closed.
var ErrJoinRejected = errors.New("hub: join rejected")

// ProtocolError reports a malformed, unknown, or unauthorised message. It is
// sent back to the offending connection as an error envelope and the receive
// loop continues.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "hub: protocol error: " + e.Msg }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

func externalErr(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, stage, err)
}
