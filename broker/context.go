// Package broker implements the session registry and channel fan-out
// engine: Context is the single shared object a Bayeux server wires
// its meta-protocol handlers against. Registry state lives behind a
// single sync.RWMutex per map, the same idiom used throughout this
// codebase for shared in-memory state.
package broker

import (
	"encoding/json"
	"sync"

	"github.com/johnjansen/bayeuxkit/channel"
	"github.com/johnjansen/bayeuxkit/events"
	"github.com/johnjansen/bayeuxkit/id"
	"github.com/johnjansen/bayeuxkit/session"
)

// Context owns the live session registry, the live channel registry, the
// wildcard cover cache, and the event bus observers are attached to. A
// server constructs exactly one Context and shares it across every
// meta-protocol handler.
type Context struct {
	cfg Config

	sessionsMu sync.RWMutex
	sessions   map[string]*session.Session

	channelsMu sync.RWMutex
	channels   map[string]*channelEntry

	cache *channel.Cache
	bus   *events.Bus
}

// New builds an empty Context. The returned Context owns bus but does
// not start or stop it; callers that built the bus themselves remain
// responsible for calling bus.Stop() during shutdown.
func New(cfg Config, bus *events.Bus) *Context {
	return &Context{
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
		channels: make(map[string]*channelEntry),
		cache:    channel.NewCache(),
		bus:      bus,
	}
}

// Register mints a fresh ClientId, creates its Session, and stores it in
// the registry, answering a /meta/handshake. It returns ErrClientIDCollision
// in the statistically-impossible case the minted id already exists.
func (c *Context) Register(cookieID string) (string, error) {
	clientID := id.GenClientId().String()

	c.sessionsMu.Lock()
	if _, exists := c.sessions[clientID]; exists {
		c.sessionsMu.Unlock()
		return "", ErrClientIDCollision
	}
	sess := session.New(clientID, cookieID, c.cfg.ClientQueueCapacity, c.cfg.MaxInterval, func() {
		c.Unsubscribe(clientID)
	})
	c.sessions[clientID] = sess
	c.sessionsMu.Unlock()

	c.bus.Emit(events.SessionAdded(clientID, map[string]string{"cookie": cookieID}))

	return clientID, nil
}

// Session looks up a registered client's Session, for handlers (e.g.
// /meta/connect) that need to Acquire its delivery queue reader
// themselves. Returns ErrClientNotFound if clientID isn't registered.
func (c *Context) Session(clientID string) (*session.Session, error) {
	c.sessionsMu.RLock()
	defer c.sessionsMu.RUnlock()
	sess, ok := c.sessions[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return sess, nil
}

// Subscribe adds clientID to each named channel's subscriber set,
// lazily creating the channel record (and its fan-out worker goroutine)
// on first subscriber. Returns ErrClientNotFound if clientID isn't
// registered, and ErrInvalidChannel if any name fails the subscribe
// grammar.
func (c *Context) Subscribe(clientID string, channels []string) error {
	c.sessionsMu.RLock()
	_, exists := c.sessions[clientID]
	c.sessionsMu.RUnlock()
	if !exists {
		return ErrClientNotFound
	}

	for _, name := range channels {
		if !channel.ValidSubscribe(name) {
			return ErrInvalidChannel
		}
	}

	c.channelsMu.Lock()
	for _, name := range channels {
		entry, ok := c.channels[name]
		if !ok {
			entry = newChannelEntry(c.cfg.ChannelCapacity)
			c.channels[name] = entry
			go c.fanOutWorker(name, entry)
		}
		entry.subscribers[clientID] = struct{}{}
	}
	c.channelsMu.Unlock()

	c.bus.Emit(events.Subscribed(clientID, nil, channels))

	return nil
}

// Unsubscribe removes clientID from every channel it belongs to and
// tears its Session down, answering a /meta/disconnect or a session
// eviction. It is safe to call more than once for the same clientID;
// the second call is a no-op. The channel-side and session-side
// removal run concurrently via a WaitGroup.
func (c *Context) Unsubscribe(clientID string) {
	var wg sync.WaitGroup
	wg.Add(2)

	var emptied []string
	go func() {
		defer wg.Done()
		c.channelsMu.Lock()
		for name, entry := range c.channels {
			delete(entry.subscribers, clientID)
			if len(entry.subscribers) == 0 {
				close(entry.ingress)
				delete(c.channels, name)
				emptied = append(emptied, name)
			}
		}
		c.channelsMu.Unlock()
	}()

	var removed bool
	go func() {
		defer wg.Done()
		c.sessionsMu.Lock()
		if sess, ok := c.sessions[clientID]; ok {
			delete(c.sessions, clientID)
			sess.Stop()
			removed = true
		}
		c.sessionsMu.Unlock()
	}()

	wg.Wait()

	for _, name := range emptied {
		c.cache.Purge(name)
	}

	if removed {
		c.bus.Emit(events.SessionRemoved(clientID))
	}
}

// Publish fans a payload out to name's own channel entry plus every
// wildcard pattern that covers it (channel.Cache.Lookup). Every
// delivered session.Message carries the original concrete channel
// name, never the wildcard pattern it was routed through, so a
// subscriber on /** still sees the message tagged with the channel it
// was actually published to. Returns ErrInvalidChannel if name fails the
// publish grammar; channels with no subscribers are silently skipped.
func (c *Context) Publish(name string, payload json.RawMessage) error {
	if !channel.ValidPublish(name) {
		return ErrInvalidChannel
	}

	msg := session.Message{Channel: name, Payload: payload}
	cover := c.cache.Lookup(name)

	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()

	c.push(name, msg)
	for _, pattern := range cover {
		c.push(pattern, msg)
	}

	return nil
}

// push enqueues msg onto name's ingress queue if the channel currently
// has an entry. Must be called with channelsMu held for reading: the
// entry cannot be closed out from under the send because Unsubscribe
// needs the write lock to remove and close it.
func (c *Context) push(name string, msg session.Message) {
	entry, ok := c.channels[name]
	if !ok {
		return
	}
	entry.ingress <- msg
}

// SendToClient delivers payload directly to one client's session queue,
// bypassing channel fan-out entirely. The meta handlers do not call it;
// publishes through /meta/connect go through Publish. Returns ErrInvalidChannel if channelName
// fails the publish grammar and ErrClientNotFound if clientID isn't
// registered.
func (c *Context) SendToClient(channelName, clientID string, payload json.RawMessage) error {
	if !channel.ValidPublish(channelName) {
		return ErrInvalidChannel
	}

	sess, err := c.Session(clientID)
	if err != nil {
		return err
	}

	if sendErr := sess.Send(session.Message{Channel: channelName, Payload: payload}); sendErr != nil {
		return ErrClientNotFound
	}
	return nil
}
