package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/cart"
)

type memoryEntry struct {
	cart      cart.Cart
	expiresAt time.Time
}

// MemoryCartStore keeps carts in process memory. Entries expire ttl after
// their last write. Expired entries are dropped lazily on access, and a write
// sweeps the whole map at most once per ttl.
type MemoryCartStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryCartStore(ttl time.Duration) *MemoryCartStore {
	m := &MemoryCartStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	m.lastSweep = m.now()
	return m
}

func (m *MemoryCartStore) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	m.mu.RLock()
	entry, ok := m.entries[userID]
	m.mu.RUnlock()

	if !ok {
		return nil, cart.ErrCacheMiss
	}
	if m.expired(entry) {
		m.mu.Lock()
		if current, ok := m.entries[userID]; ok && m.expired(current) {
			delete(m.entries, userID)
		}
		m.mu.Unlock()
		return nil, cart.ErrCacheMiss
	}

	c := copyCart(entry.cart)
	return &c, nil
}

func (m *MemoryCartStore) Set(ctx context.Context, userID string, c *cart.Cart) error {
	now := m.now()
	entry := memoryEntry{cart: copyCart(*c)}
	if m.ttl > 0 {
		entry.expiresAt = now.Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = entry
	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		m.sweepLocked()
	}
	return nil
}

func (m *MemoryCartStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

// Sweep removes every expired cart and returns how many were dropped.
func (m *MemoryCartStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *MemoryCartStore) sweepLocked() int {
	m.lastSweep = m.now()
	removed := 0
	for userID, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, userID)
			removed++
		}
	}
	return removed
}

func (m *MemoryCartStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryCartStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func copyCart(c cart.Cart) cart.Cart {
	items := make([]cart.Item, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}
