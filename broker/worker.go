package broker

import "log"

// fanOutWorker is the one goroutine per live channel: it drains
// entry's ingress queue and delivers each message to every currently
// subscribed session, exiting when Unsubscribe closes the ingress
// channel because the last subscriber left. A range-over-channel
// broker loop generalized from a single shared broadcast to one
// worker per channel record.
func (c *Context) fanOutWorker(name string, entry *channelEntry) {
	for msg := range entry.ingress {
		c.channelsMu.RLock()
		subscribers := make([]string, 0, len(entry.subscribers))
		for clientID := range entry.subscribers {
			subscribers = append(subscribers, clientID)
		}
		c.channelsMu.RUnlock()

		c.sessionsMu.RLock()
		for _, clientID := range subscribers {
			sess, ok := c.sessions[clientID]
			if !ok {
				continue
			}
			if err := sess.Send(msg); err != nil {
				log.Printf("broker: delivery to %s on %s failed: %v", clientID, name, err)
			}
		}
		c.sessionsMu.RUnlock()
	}
}
