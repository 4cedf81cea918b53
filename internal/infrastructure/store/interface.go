package store

import (
	"context"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
)

// OrderStore persists orders. The two mutating calls besides Create are
// conditional writes: they report applied=false instead of overwriting when
// the precondition no longer holds, so concurrent callers cannot both win.
type OrderStore interface {
	Create(ctx context.Context, o *order.Order) error

	// Get returns order.ErrOrderNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*order.Order, error)

	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]*order.Order, error)

	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]*order.Order, error)

	// MarkPaid records the payment only if the order is currently unpaid.
	MarkPaid(ctx context.Context, id string, receipt order.PaymentReceipt, paidAt time.Time) (applied bool, err error)

	// UpdateStatus moves the order to `to` only if it is currently in `from`.
	UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (applied bool, err error)
}
