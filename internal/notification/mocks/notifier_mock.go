package mocks

import (
	"context"
	"sync"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/notification"
)

// MockNotifier records every notification it is given
type MockNotifier struct {
	mu    sync.Mutex
	calls []notification.Notification

	NotifyErr error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, n notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, n)
	return m.NotifyErr
}

// Calls returns a copy of the recorded notifications.
func (m *MockNotifier) Calls() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification.Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns how many notifications of kind were recorded.
func (m *MockNotifier) Count(kind order.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
