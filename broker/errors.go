package broker

import "errors"

var (
	// ErrInvalidChannel is returned when a channel name fails the
	// publish or subscribe grammar (channel.ValidPublish / ValidSubscribe).
	ErrInvalidChannel = errors.New("broker: invalid channel name")

	// ErrClientNotFound is returned by Subscribe, Unsubscribe's callers,
	// and SendToClient when the client id isn't in the session registry,
	// either because it never existed or because it was already evicted.
	ErrClientNotFound = errors.New("broker: client not found")

	// ErrClientIDCollision is returned by Register in the astronomically
	// unlikely event a freshly minted ClientId already exists. Register
	// aborts the handshake on collision rather than silently reusing a
	// session.
	ErrClientIDCollision = errors.New("broker: client id collision")
)
