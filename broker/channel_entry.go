package broker

import "github.com/johnjansen/bayeuxkit/session"

// channelEntry is one live channel record: the set of subscribed client
// ids and the bounded ingress queue its fan-out worker drains. An entry
// exists only while it has at least one subscriber; Context.Unsubscribe
// deletes and closes it the moment the last subscriber leaves, which is
// what terminates the worker goroutine.
type channelEntry struct {
	subscribers map[string]struct{}
	ingress     chan session.Message
}

func newChannelEntry(capacity int) *channelEntry {
	return &channelEntry{
		subscribers: make(map[string]struct{}),
		ingress:     make(chan session.Message, capacity),
	}
}
