package backend

// AuthChangeEvent names a transition of the handle's session.
type AuthChangeEvent string

const (
	EventSignedIn       AuthChangeEvent = "SIGNED_IN"
	EventSignedOut      AuthChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
)

// AuthChangeListener receives the event and the session after the change
// (nil for EventSignedOut).
type AuthChangeListener func(event AuthChangeEvent, session *Session)

type listenerEntry struct {
	id int
	fn AuthChangeListener
}

// OnAuthStateChange registers fn and returns a function that removes it.
// Listeners run synchronously, in registration order, on the goroutine that
// caused the change.
func (c *Client) OnAuthStateChange(fn AuthChangeListener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) emit(event AuthChangeEvent, session *Session) {
	c.mu.Lock()
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.fn(event, session)
	}
}
