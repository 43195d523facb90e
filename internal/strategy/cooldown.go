package strategy

import (
	"sync"
	"time"
)

// Cooldown remembers the last successful trade per asset key for the life of
// the process. Nothing is persisted, so a restart clears every cooldown.
type Cooldown struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, now: time.Now, last: make(map[string]time.Time)}
}

func (c *Cooldown) CanTrade(key string) bool {
	return c.Remaining(key) == 0
}

// Record marks key as traded now. Call it only after a successful submission.
func (c *Cooldown) Record(key string) {
	c.mu.Lock()
	c.last[key] = c.now()
	c.mu.Unlock()
}

func (c *Cooldown) Remaining(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[key]
	if !ok {
		return 0
	}
	remaining := c.window - c.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}
