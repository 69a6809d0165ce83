package session

import "encoding/json"

// Message is the unit that travels from the channel fan-out worker (or
// a direct send-to-client) into a session's delivery queue: a channel
// name paired with an opaque JSON payload.
type Message struct {
	Channel string
	Payload json.RawMessage
}
