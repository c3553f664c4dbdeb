package discord

import "sync"

// EventCache keeps the last seen snapshot of each scheduled event so that
// update dispatches, which only carry the new state, can be paired with the
// previous one.
type EventCache struct {
	mu     sync.RWMutex
	events map[string]ScheduledEvent
}

// NewEventCache creates an empty cache.
func NewEventCache() *EventCache {
	return &EventCache{
		events: make(map[string]ScheduledEvent),
	}
}

// Put stores ev, replacing any earlier snapshot.
func (c *EventCache) Put(ev ScheduledEvent) {
	c.mu.Lock()
	c.events[ev.ID] = ev
	c.mu.Unlock()
}

// Swap stores ev and returns the snapshot it replaced, if any.
func (c *EventCache) Swap(ev ScheduledEvent) (ScheduledEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.events[ev.ID]
	c.events[ev.ID] = ev
	return prev, ok
}

// Get returns the snapshot for id.
func (c *EventCache) Get(id string) (ScheduledEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[id]
	return ev, ok
}

// Delete removes the snapshot for id.
func (c *EventCache) Delete(id string) {
	c.mu.Lock()
	delete(c.events, id)
	c.mu.Unlock()
}

// DeleteGuild removes every snapshot belonging to guildID.
func (c *EventCache) DeleteGuild(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ev := range c.events {
		if ev.GuildID == guildID {
			delete(c.events, id)
		}
	}
}

// Len returns the number of cached events.
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}
