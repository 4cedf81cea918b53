package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
)

// MemoryOrderStore keeps orders in process memory. Orders are stored as
// encoded snapshots so callers never share state with the store.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string][]byte
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string][]byte)}
}

func (s *MemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = data
	return nil
}

func (s *MemoryOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	data, ok := s.orders[id]
	s.mu.RUnlock()
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return decodeOrder(data)
}

func (s *MemoryOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.UserID == userID })
}

func (s *MemoryOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	return s.list(func(*order.Order) bool { return true })
}

func (s *MemoryOrderStore) MarkPaid(ctx context.Context, id string, receipt order.PaymentReceipt, paidAt time.Time) (bool, error) {
	return s.update(id, func(o *order.Order) bool {
		if o.IsPaid {
			return false
		}
		o.ApplyPayment(receipt, paidAt)
		return true
	})
}

func (s *MemoryOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	return s.update(id, func(o *order.Order) bool {
		if o.Status != from {
			return false
		}
		o.ApplyStatus(to, at)
		return true
	})
}

// update runs fn under the write lock; fn reports whether it changed the order.
func (s *MemoryOrderStore) update(id string, fn func(*order.Order) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.orders[id]
	if !ok {
		return false, order.ErrOrderNotFound
	}
	o, err := decodeOrder(data)
	if err != nil {
		return false, err
	}
	if !fn(o) {
		return false, nil
	}
	encoded, err := json.Marshal(o)
	if err != nil {
		return false, err
	}
	s.orders[id] = encoded
	return true, nil
}

func (s *MemoryOrderStore) list(match func(*order.Order) bool) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*order.Order, 0)
	for _, data := range s.orders {
		o, err := decodeOrder(data)
		if err != nil {
			return nil, err
		}
		if match(o) {
			orders = append(orders, o)
		}
	}
	sortNewestFirst(orders)
	return orders, nil
}

func decodeOrder(data []byte) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	o.RecomputeTotals()
	return &o, nil
}

func sortNewestFirst(orders []*order.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
