package query

type EventKind string

const (
	// EventUpdated follows a completed fetch.
	EventUpdated     EventKind = "updated"
	// EventMerged follows a write merged into the entry, or a rollback.
	EventMerged      EventKind = "merged"
	EventInvalidated EventKind = "invalidated"
	EventFailed      EventKind = "failed"
)

// Event reports a change to the cache. All is set when every entry of
// Key.Entity was invalidated at once.
type Event struct {
	Kind EventKind
	Key  Key
	All  bool
}

// Observer is called synchronously after the cache changes. It must not
// subscribe or unsubscribe observers.
type Observer func(Event)

// Subscribe registers fn. Once the returned function returns, fn is never
// called again.
func (c *Client) Subscribe(fn Observer) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Client) notify(ev Event) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, fn := range c.observers {
		fn(ev)
	}
}
