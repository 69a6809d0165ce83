package broker

import "time"

// Config tunes the registry and fan-out engine.
type Config struct {
	// Timeout is the long-poll hold time advertised in /meta/connect's
	// advice and enforced server-side: how long a connect request may
	// wait for a message before replying with retry advice.
	Timeout time.Duration

	// Interval is the minimum delay a client is advised to wait between
	// successive connects.
	Interval time.Duration

	// MaxInterval is the session eviction horizon: a session with no
	// long-poll in flight for this long is torn down by its timeout
	// supervisor (session.Session).
	MaxInterval time.Duration

	// ChannelCapacity bounds each channel's fan-out ingress queue
	// (broker.channelEntry.ingress).
	ChannelCapacity int

	// ClientQueueCapacity bounds each session's delivery queue
	// (session.Session.queue).
	ClientQueueCapacity int

	// EventsChannelCapacity bounds the event bus's ingress queue and each
	// observer's personal buffer (events.Bus).
	EventsChannelCapacity int
}

// DefaultConfig returns production-sane defaults: a 20s long-poll
// timeout, no advised inter-connect delay, a 60s eviction horizon, and
// channel/event capacities of 500.
func DefaultConfig() Config {
	return Config{
		Timeout:               20 * time.Second,
		Interval:              0,
		MaxInterval:           60 * time.Second,
		ChannelCapacity:       500,
		ClientQueueCapacity:   500,
		EventsChannelCapacity: 500,
	}
}
