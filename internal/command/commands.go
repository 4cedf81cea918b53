package command

import (
	"github.com/example/storefront-orders/internal/domain"
	"github.com/example/storefront-orders/internal/domain/order"
)

// Order Commands
type CreateOrder struct {
	UserID          string                `json:"user_id"`
	Customer        order.Customer        `json:"customer"`
	ShippingAddress order.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
}

type BeginPayment struct {
	OrderID string       `json:"order_id"`
	Actor   domain.Actor `json:"-"`
}

type ConfirmPayment struct {
	OrderID          string       `json:"order_id"`
	GatewayPaymentID string       `json:"gateway_payment_id"`
	PayerReference   string       `json:"payer_reference"`
	Actor            domain.Actor `json:"-"`
}

// Admin Commands
type UpdateFulfillmentStatus struct {
	OrderID string       `json:"order_id"`
	Status  string       `json:"status"`
	Actor   domain.Actor `json:"-"`
}
