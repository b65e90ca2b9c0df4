// Package tieredcache is a key/value store split into three independent TTL
// tiers. Entries live in memory and, when a root directory is configured, as
// one JSON file per hashed key under a per-tier namespace so external
// inspectors can audit them without going through the engine.
package tieredcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier names a cache namespace. Tiers are fully isolated: the same key in two
// tiers refers to two different entries.
type Tier string

const (
	// TierReasoning holds short-lived working artifacts (~one task).
	TierReasoning Tier = "reasoning"
	// TierProject holds per-project context that survives a work day.
	TierProject Tier = "project"
	// TierVault holds long-lived reusable solutions.
	TierVault Tier = "vault"
)

// Tiers lists every tier in a fixed order.
func Tiers() []Tier { return []Tier{TierReasoning, TierProject, TierVault} }

// TTLFor returns the fixed TTL assigned to entries of a tier at store time.
func TTLFor(tier Tier) time.Duration {
	switch tier {
	case TierReasoning:
		return 5 * time.Minute
	case TierProject:
		return 24 * time.Hour
	case TierVault:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Entry is one cached record.
type Entry struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	StoredAt  time.Time         `json:"stored_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache is the tiered store. All operations are synchronous and guarded by a
// per-tier mutex; there are no suspension points.
type Cache struct {
	now   func() time.Time
	tiers map[Tier]*tierStore
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache. A non-empty root enables the on-disk layer: existing
// entries are loaded, and every mutation is written through. An empty root
// keeps the cache purely in memory.
func New(root string, opts ...Option) (*Cache, error) {
	c := &Cache{
		now:   time.Now,
		tiers: make(map[Tier]*tierStore, 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, tier := range Tiers() {
		ts, err := newTierStore(tier, root)
		if err != nil {
			return nil, err
		}
		c.tiers[tier] = ts
	}
	return c, nil
}

func (c *Cache) tier(t Tier) (*tierStore, error) {
	ts, ok := c.tiers[t]
	if !ok {
		return nil, fmt.Errorf("unknown cache tier: %s", t)
	}
	return ts, nil
}

// selected resolves an optional tier argument: the zero Tier means all tiers.
func (c *Cache) selected(t Tier) ([]*tierStore, error) {
	if t == "" {
		all := make([]*tierStore, 0, len(c.tiers))
		for _, tier := range Tiers() {
			all = append(all, c.tiers[tier])
		}
		return all, nil
	}
	ts, err := c.tier(t)
	if err != nil {
		return nil, err
	}
	return []*tierStore{ts}, nil
}

// Store writes an entry. Its expiry is the tier's fixed TTL from now; storing
// again under the same key replaces the entry and restarts the clock.
func (c *Cache) Store(tier Tier, key, value string, metadata map[string]string) (Entry, error) {
	ts, err := c.tier(tier)
	if err != nil {
		return Entry{}, err
	}
	if key == "" {
		return Entry{}, fmt.Errorf("cache store: key is required")
	}
	now := c.now()
	entry := Entry{
		ID:        uuid.New().String(),
		Key:       key,
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(TTLFor(tier)),
		Metadata:  metadata,
	}
	return entry, ts.put(entry)
}

// Retrieve looks up key in a tier. An entry past its expiry is treated as
// absent and deleted on the spot, so a stale value is never returned.
func (c *Cache) Retrieve(tier Tier, key string) (Entry, bool, error) {
	ts, err := c.tier(tier)
	if err != nil {
		return Entry{}, false, err
	}
	return ts.get(key, c.now())
}

// Delete removes key from a tier. Returns whether an entry existed.
func (c *Cache) Delete(tier Tier, key string) (bool, error) {
	ts, err := c.tier(tier)
	if err != nil {
		return false, err
	}
	return ts.remove(key)
}

// List returns the live entries of a tier (or of all tiers for the zero
// Tier), pruning expired ones as it goes.
func (c *Cache) List(tier Tier) ([]Entry, error) {
	stores, err := c.selected(tier)
	if err != nil {
		return nil, err
	}
	now := c.now()
	var out []Entry
	for _, ts := range stores {
		out = append(out, ts.list(now)...)
	}
	return out, nil
}

// Prune sweeps expired entries from a tier (or all tiers) and reports how
// many were removed.
func (c *Cache) Prune(tier Tier) (int, error) {
	stores, err := c.selected(tier)
	if err != nil {
		return 0, err
	}
	now := c.now()
	removed := 0
	for _, ts := range stores {
		removed += ts.prune(now)
	}
	return removed, nil
}

// Clear removes every entry from a tier (or all tiers) and reports the count.
func (c *Cache) Clear(tier Tier) (int, error) {
	stores, err := c.selected(tier)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, ts := range stores {
		removed += ts.clear()
	}
	return removed, nil
}

// StartJanitor runs a periodic prune of all tiers until ctx is cancelled.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = c.Prune("")
			}
		}
	}()
}
