package phoneauth

// Subscribe returns a channel that always holds the most recent snapshot.
// Intermediate snapshots are dropped for slow readers; the latest one is never
// lost. The current snapshot is delivered immediately. The returned function
// unsubscribes and closes the channel; Close on the controller does the same
// for every subscriber.
func (c *Controller) Subscribe() (<-chan Session, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Session, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	ch <- c.state
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// publishLocked replaces whatever snapshot each subscriber has not read yet.
// Callers must hold c.mu, which makes the drain-then-send pair atomic with
// respect to other publishers.
func (c *Controller) publishLocked() {
	snap := c.state
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
