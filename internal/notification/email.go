package notification

import (
	"context"
	"fmt"

	"github.com/example/storefront-orders/internal/domain/order"
)

// Mailer is satisfied by email.Service.
type Mailer interface {
	SendOrderConfirmation(to string, o *order.Order) error
	SendPaymentConfirmed(to string, o *order.Order) error
	SendOrderShipped(to string, o *order.Order) error
	SendOrderDelivered(to string, o *order.Order) error
	SendOrderCancelled(to string, o *order.Order) error
}

// EmailNotifier sends one templated email per notification kind.
type EmailNotifier struct {
	mailer Mailer
}

func NewEmailNotifier(mailer Mailer) *EmailNotifier {
	return &EmailNotifier{mailer: mailer}
}

func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Order == nil {
		return fmt.Errorf("notification %s has no order", n.ID)
	}

	var err error
	switch n.Kind {
	case order.EventOrderPlaced:
		err = e.mailer.SendOrderConfirmation(n.Recipient, n.Order)
	case order.EventPaymentConfirmed:
		err = e.mailer.SendPaymentConfirmed(n.Recipient, n.Order)
	case order.EventOrderShipped:
		err = e.mailer.SendOrderShipped(n.Recipient, n.Order)
	case order.EventOrderDelivered:
		err = e.mailer.SendOrderDelivered(n.Recipient, n.Order)
	case order.EventOrderCancelled:
		err = e.mailer.SendOrderCancelled(n.Recipient, n.Order)
	default:
		return fmt.Errorf("unsupported notification kind %q", n.Kind)
	}
	if err != nil {
		return fmt.Errorf("send %s email: %w", n.Kind, err)
	}
	return nil
}
