package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultFastTTL bounds how long the fast tier serves an answer.
const DefaultFastTTL = 30 * time.Minute

// MemoryStore is the fast, session-scoped tier. Each entry ages from its
// insertion into this tier, so durable-tier backfills get a full TTL
// regardless of when the answer was first produced. Expiry is checked
// explicitly on read; the underlying store's janitor only reclaims memory.
type MemoryStore struct {
	c   *gocache.Cache
	ttl time.Duration
}

type fastEntry struct {
	rec      *Record
	storedAt time.Time
}

// NewMemoryStore creates the fast tier with the given TTL (DefaultFastTTL
// when zero).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultFastTTL
	}
	return &MemoryStore{
		c:   gocache.New(ttl, ttl/2),
		ttl: ttl,
	}
}

// Get implements Store. Entries older than the TTL are treated as absent
// and purged.
func (s *MemoryStore) Get(_ context.Context, hash string) (*Record, error) {
	v, ok := s.c.Get(hash)
	if !ok {
		return nil, nil
	}
	e, ok := v.(fastEntry)
	if !ok || time.Since(e.storedAt) >= s.ttl {
		s.c.Delete(hash)
		return nil, nil
	}
	return e.rec, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.c.Set(rec.Hash, fastEntry{rec: rec, storedAt: time.Now()}, s.ttl)
	return nil
}

// Len returns the number of live entries, expired included until purged.
func (s *MemoryStore) Len() int { return s.c.ItemCount() }

// Flush drops every entry.
func (s *MemoryStore) Flush() { s.c.Flush() }
