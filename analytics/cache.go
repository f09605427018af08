package analytics

import (
	"sync"
	"time"
)

// reportCache holds the last Overview for a TTL so the dashboard does not
// hammer the upstream reporting API on every poll.
type reportCache struct {
	mu      sync.RWMutex
	data    *Overview
	fetched time.Time
	ttl     time.Duration
}

func newReportCache(ttl time.Duration) *reportCache {
	return &reportCache{ttl: ttl}
}

func (c *reportCache) get() (*Overview, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Since(c.fetched) >= c.ttl {
		return nil, false
	}
	return c.data, true
}

func (c *reportCache) set(o *Overview) {
	c.mu.Lock()
	c.data = o
	c.fetched = time.Now()
	c.mu.Unlock()
}
