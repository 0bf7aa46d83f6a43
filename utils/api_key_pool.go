package utils

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrNoAPIKeys is returned when every key in a pool is cooling down or the pool is empty
var ErrNoAPIKeys = errors.New("no available API keys")

// APIKeyPool rotates requests across a set of API keys. Keys that fail are benched
// for a cooldown period; selection favours the least used keys.
type APIKeyPool struct {
	keys     []string
	uses     map[string]int
	benched  map[string]time.Time
	failures map[string]int
	now      func() time.Time
	mu       sync.Mutex
}

// KeyPoolStats is a snapshot of pool usage
type KeyPoolStats struct {
	Total     int `json:"total_keys"`
	Available int `json:"available_keys"`
	Benched   int `json:"benched_keys"`
	Requests  int `json:"requests"`
	Failures  int `json:"failures"`
}

// NewAPIKeyPool creates a pool, or returns nil when keys is empty
func NewAPIKeyPool(keys []string) *APIKeyPool {
	if len(keys) == 0 {
		return nil
	}

	return &APIKeyPool{
		keys:     append([]string(nil), keys...),
		uses:     make(map[string]int),
		benched:  make(map[string]time.Time),
		failures: make(map[string]int),
		now:      time.Now,
	}
}

// Size returns the number of keys in the pool
func (p *APIKeyPool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Acquire returns one of the least used keys that is not benched
func (p *APIKeyPool) Acquire() (string, error) {
	if p == nil {
		return "", ErrNoAPIKeys
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if len(available) == 0 {
		return "", ErrNoAPIKeys
	}

	minUses := -1
	for _, key := range available {
		if n := p.uses[key]; minUses == -1 || n < minUses {
			minUses = n
		}
	}

	var candidates []string
	for _, key := range available {
		if p.uses[key] == minUses {
			candidates = append(candidates, key)
		}
	}

	key := candidates[rand.Intn(len(candidates))]
	p.uses[key]++
	return key, nil
}

// MarkFailed benches key for cooldown
func (p *APIKeyPool) MarkFailed(key string, cooldown time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures[key]++
	p.benched[key] = p.now().Add(cooldown)
}

// Stats returns a usage snapshot
func (p *APIKeyPool) Stats() KeyPoolStats {
	if p == nil {
		return KeyPoolStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := KeyPoolStats{Total: len(p.keys)}
	stats.Available = len(p.availableLocked())
	stats.Benched = stats.Total - stats.Available
	for _, key := range p.keys {
		stats.Requests += p.uses[key]
		stats.Failures += p.failures[key]
	}
	return stats
}

// availableLocked drops expired bench entries and returns usable keys
func (p *APIKeyPool) availableLocked() []string {
	now := p.now()
	available := make([]string, 0, len(p.keys))
	for _, key := range p.keys {
		if until, ok := p.benched[key]; ok {
			if now.Before(until) {
				continue
			}
			delete(p.benched, key)
		}
		available = append(available, key)
	}
	return available
}
