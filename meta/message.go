// Package meta implements the four Bayeux meta-channel HTTP handlers:
// /meta/handshake, /meta/subscribe, /meta/connect (which doubles as the
// publish endpoint), and /meta/disconnect. It is the only package
// besides the top-level entrypoint allowed to import buffalo: broker,
// session, channel, events, id, and auth stay usable behind any HTTP
// binding, and meta is where one gets chosen.
package meta

import (
	"bytes"
	"encoding/json"
)

// Reconnect is the value of an Advice's "reconnect" field.
type Reconnect string

const (
	ReconnectRetry      Reconnect = "retry"
	ReconnectHandshake  Reconnect = "handshake"
	ReconnectNone       Reconnect = "none"
)

// Advice tells the client what to do next: retry the long-poll after
// timeout/interval milliseconds, redo the handshake, or give up.
type Advice struct {
	Reconnect Reconnect `json:"reconnect,omitempty"`
	Interval  *int64    `json:"interval,omitempty"`
	Timeout   *int64    `json:"timeout,omitempty"`
}

// adviceRetry builds the advice attached to a successful handshake and
// to a /meta/connect long-poll that timed out with no message.
func adviceRetry(timeoutMs, intervalMs int64) *Advice {
	return &Advice{Reconnect: ReconnectRetry, Timeout: &timeoutMs, Interval: &intervalMs}
}

// adviceHandshake tells the client its clientId is no longer valid and
// it must re-handshake before trying again.
func adviceHandshake() *Advice {
	return &Advice{Reconnect: ReconnectHandshake}
}

// Subscription is the /meta/subscribe "subscription" field. The wire
// protocol allows it to arrive as either a bare string or an array of
// strings; Subscription normalizes both into a slice and, on the way
// back out, renders a single entry as a bare string to match what most
// clients send in.
type Subscription []string

func (s *Subscription) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*s = nil
		return nil
	}
	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(b, &single); err != nil {
			return err
		}
		*s = Subscription{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*s = Subscription(list)
	return nil
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// Message is one entry of a Bayeux envelope array, covering every field
// used by any of the four meta handlers or by publish.
type Message struct {
	ID                       string          `json:"id,omitempty"`
	Channel                  string          `json:"channel,omitempty"`
	ClientID                 string          `json:"clientId,omitempty"`
	ConnectionType           string          `json:"connectionType,omitempty"`
	Data                     json.RawMessage `json:"data,omitempty"`
	Error                    string          `json:"error,omitempty"`
	MinimumVersion           string          `json:"minimumVersion,omitempty"`
	Subscription             Subscription    `json:"subscription,omitempty"`
	Successful               *bool           `json:"successful,omitempty"`
	SupportedConnectionTypes []string        `json:"supportedConnectionTypes,omitempty"`
	Version                  string          `json:"version,omitempty"`
	Advice                   *Advice         `json:"advice,omitempty"`
}

func boolPtr(v bool) *bool { return &v }

// ok builds a bare successful reply echoing id and channel.
func ok(id, channel string) Message {
	return Message{ID: id, Channel: channel, Successful: boolPtr(true)}
}

// sessionUnknown builds the "402::session_unknown" reply used whenever a
// request's cookie, clientId, or channel can't be matched to a live
// session. advice is typically nil or adviceHandshake().
func sessionUnknown(id, channel string, advice *Advice) Message {
	return Message{
		ID:         id,
		Channel:    channel,
		Successful: boolPtr(false),
		Error:      "402::session_unknown",
		Advice:     advice,
	}
}

// wrongMinimumVersion builds the handshake's "400::minimum_version_missing" reply.
func wrongMinimumVersion(id, minimumVersion string) Message {
	return Message{
		ID:             id,
		MinimumVersion: minimumVersion,
		Successful:     boolPtr(false),
		Error:          "400::minimum_version_missing",
	}
}

// subscriptionMissing builds the subscribe's "403::subscription_missing" reply.
func subscriptionMissing(id string) Message {
	return Message{
		ID:         id,
		Channel:    ChannelSubscribe,
		Successful: boolPtr(false),
		Error:      "403::subscription_missing",
	}
}

// channelMissing builds publish's "400::channel_missing" reply for a
// message with no channel field.
func channelMissing(id string) Message {
	return Message{
		ID:         id,
		Successful: boolPtr(false),
		Error:      "400::channel_missing",
	}
}

// twoConnections is the explicit (uncoded) error returned when two
// long-polls race for the same client_id's delivery queue reader.
func twoConnections(id, channel string) Message {
	return Message{
		ID:         id,
		Channel:    channel,
		Successful: boolPtr(false),
		Error:      "Two connection with same client_id.",
	}
}
