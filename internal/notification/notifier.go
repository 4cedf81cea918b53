package notification

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification is a customer-facing message about an order. Order is the
// snapshot taken right after the change that raised it.
type Notification struct {
	ID        string       `json:"id"`
	Kind      order.Event  `json:"kind"`
	Recipient string       `json:"recipient"`
	Order     *order.Order `json:"order"`
	CreatedAt time.Time    `json:"created_at"`
}

func New(kind order.Event, o *order.Order) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: o.Customer.Email,
		Order:     o,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier delivers notifications. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only logs; it is the fallback when no transport is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("order_id", n.Order.ID),
		zap.String("recipient", n.Recipient),
	)
	return nil
}

// Multi fans a notification out to every notifier, joining their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
