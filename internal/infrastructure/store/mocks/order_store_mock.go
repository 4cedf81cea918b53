package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
)

// MockOrderStore wraps an in-memory store and lets tests inject failures
// and observe the conditional writes issued against it.
type MockOrderStore struct {
	*store.MemoryOrderStore

	mu sync.Mutex

	// For tracking calls in tests
	CreateCalls       []string
	MarkPaidCalls     []MarkPaidCall
	UpdateStatusCalls []UpdateStatusCall

	CreateErr       error
	GetErr          error
	ListErr         error
	MarkPaidErr     error
	UpdateStatusErr error

	// BeforeUpdateStatus runs before the conditional write is applied, which
	// lets tests change the order underneath the caller.
	BeforeUpdateStatus func(id string)
}

// MarkPaidCall records parameters passed to MarkPaid
type MarkPaidCall struct {
	ID      string
	Receipt order.PaymentReceipt
	Applied bool
}

// UpdateStatusCall records parameters passed to UpdateStatus
type UpdateStatusCall struct {
	ID      string
	From    order.Status
	To      order.Status
	Applied bool
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{MemoryOrderStore: store.NewMemoryOrderStore()}
}

func (m *MockOrderStore) Create(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, o.ID)
	err := m.CreateErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.MemoryOrderStore.Create(ctx, o)
}

func (m *MockOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.MemoryOrderStore.Get(ctx, id)
}

func (m *MockOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.MemoryOrderStore.ListByUser(ctx, userID)
}

func (m *MockOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.MemoryOrderStore.ListAll(ctx)
}

func (m *MockOrderStore) MarkPaid(ctx context.Context, id string, receipt order.PaymentReceipt, paidAt time.Time) (bool, error) {
	if m.MarkPaidErr != nil {
		return false, m.MarkPaidErr
	}
	// Real drivers abort writes on a cancelled context.
	if err := ctx.Err(); err != nil {
		return false, err
	}
	applied, err := m.MemoryOrderStore.MarkPaid(ctx, id, receipt, paidAt)

	m.mu.Lock()
	m.MarkPaidCalls = append(m.MarkPaidCalls, MarkPaidCall{ID: id, Receipt: receipt, Applied: applied})
	m.mu.Unlock()
	return applied, err
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	if m.UpdateStatusErr != nil {
		return false, m.UpdateStatusErr
	}
	if m.BeforeUpdateStatus != nil {
		m.BeforeUpdateStatus(id)
	}
	applied, err := m.MemoryOrderStore.UpdateStatus(ctx, id, from, to, at)

	m.mu.Lock()
	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{ID: id, From: from, To: to, Applied: applied})
	m.mu.Unlock()
	return applied, err
}

// PaidCount returns how many MarkPaid calls actually applied.
func (m *MockOrderStore) PaidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.MarkPaidCalls {
		if c.Applied {
			n++
		}
	}
	return n
}
