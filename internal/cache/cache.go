package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"storefront/exporter/internal/blobstore"
	"storefront/exporter/internal/domain"
)

const namespace = "listings"

// ListingCache holds full listing snapshots keyed by category set. It is
// the only cross-query shared mutable state; entries are idempotent
// snapshots, so same-key races resolve as last write wins.
type ListingCache struct {
	store    blobstore.Store
	clock    clock.Clock
	ttl      time.Duration
	capacity int

	mutex   sync.Mutex
	entries map[string]*domain.CacheEntry
	order   []string // insertion order, oldest first
}

// New creates a ListingCache with at most capacity resident keys and the
// given snapshot TTL. The clock is injected so validity is testable.
func New(store blobstore.Store, ttl time.Duration, capacity int, clk clock.Clock) *ListingCache {
	return &ListingCache{
		store:    store,
		clock:    clk,
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*domain.CacheEntry),
	}
}

// Key builds the deterministic cache key for a category set: the single
// slug, or the sorted slugs joined for multi-category queries.
func Key(slugs []string) string {
	if len(slugs) == 1 {
		return slugs[0]
	}
	sorted := make([]string, len(slugs))
	copy(sorted, slugs)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

// Get returns the entry for key, consulting the in-process map first and
// falling back to the blob store. Returns nil on miss. Callers must
// check Valid and re-fetch on stale entries.
func (c *ListingCache) Get(ctx context.Context, key string) *domain.CacheEntry {
	c.mutex.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mutex.Unlock()
		return entry
	}
	c.mutex.Unlock()

	data, err := c.store.Load(ctx, namespace, key)
	if err != nil {
		if err != domain.ErrNotFound {
			log.Warnf("Failed to load cached listing %s: %v", key, err)
		}
		return nil
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warnf("Discarding unreadable cached listing %s: %v", key, err)
		return nil
	}

	c.insert(key, &entry)
	return &entry
}

// Put stores a fresh snapshot for key, superseding any previous entry,
// and persists it asynchronously. Persistence failures are logged and
// never affect the in-memory path.
func (c *ListingCache) Put(key string, records []domain.ListingRecord) *domain.CacheEntry {
	entry := &domain.CacheEntry{
		Key:       key,
		Records:   records,
		CreatedAt: c.clock.Now(),
	}
	c.insert(key, entry)

	go func() {
		data, err := json.Marshal(entry)
		if err != nil {
			log.Warnf("Failed to encode cached listing %s: %v", key, err)
			return
		}
		// Persisting outlives the query scope on purpose.
		if err := c.store.Save(context.Background(), namespace, key, data); err != nil {
			log.Warnf("Failed to persist cached listing %s: %v", key, err)
		}
	}()

	return entry
}

// Valid reports whether the entry's snapshot is younger than the TTL.
func (c *ListingCache) Valid(entry *domain.CacheEntry) bool {
	if entry == nil {
		return false
	}
	return c.clock.Now().Sub(entry.CreatedAt) < c.ttl
}

func (c *ListingCache) insert(key string, entry *domain.CacheEntry) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = entry

	// Evict the oldest resident key from memory only; persisted copies
	// stay on disk and are re-validated by TTL on next load.
	for c.capacity > 0 && len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		log.Debugf("Evicted cached listing %s", oldest)
	}
}
