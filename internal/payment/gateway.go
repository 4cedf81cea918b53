package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = fmt.Errorf("%w: webhook signature verification failed", domain.ErrValidation)
	ErrMalformedWebhook = fmt.Errorf("%w: malformed webhook payload", domain.ErrValidation)
	ErrOutcomeMismatch  = fmt.Errorf("%w: payment does not match the order", domain.ErrPaymentNotApproved)
)

// Gateway is an external payment provider.
type Gateway interface {
	Name() string

	// CreatePayment starts a payment and returns where to send the payer.
	CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error)

	// ExecutePayment completes a payer-approved payment. A declined payment
	// is reported through Outcome.Approved, not as an error.
	ExecutePayment(ctx context.Context, gatewayPaymentID, payerReference string) (*Outcome, error)

	// ParseWebhook verifies and decodes an asynchronous notification.
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
}

type LineItem struct {
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type CreateRequest struct {
	OrderID       string
	Description   string
	Currency      string
	CustomerEmail string
	Items         []LineItem
	ItemsTotal    decimal.Decimal
	ShippingTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	Amount        decimal.Decimal
	ReturnURL     string
	CancelURL     string
}

// NewCreateRequest describes the order's grand total as a payment.
// Redirects go back to the storefront at frontendURL.
func NewCreateRequest(o *order.Order, currency, frontendURL string) CreateRequest {
	base := strings.TrimRight(frontendURL, "/")

	items := make([]LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, LineItem{
			SKU:       item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return CreateRequest{
		OrderID:       o.ID,
		Description:   "Order #" + o.ShortID(),
		Currency:      strings.ToUpper(currency),
		CustomerEmail: o.Customer.Email,
		Items:         items,
		ItemsTotal:    o.Pricing.ItemsTotal,
		ShippingTotal: o.Pricing.ShippingTotal,
		TaxTotal:      o.Pricing.TaxTotal,
		Amount:        o.Pricing.GrandTotal,
		ReturnURL:     fmt.Sprintf("%s/payment/success?orderId=%s", base, o.ID),
		CancelURL:     base + "/payment/cancel",
	}
}

type Payment struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	ApprovalURL      string `json:"approval_url"`
}

// Outcome is the uniform result of a payment attempt, whether it arrived
// through ExecutePayment or a webhook.
type Outcome struct {
	Approved bool
	// OrderID and Amount are what the gateway says the payment was for.
	// Both are empty when the gateway did not report them.
	OrderID string
	Amount  decimal.Decimal
	Receipt order.PaymentReceipt
}

// Covers returns ErrOutcomeMismatch unless the payment was made for o and
// for exactly its grand total.
func (out Outcome) Covers(o *order.Order) error {
	if out.OrderID != o.ID {
		return fmt.Errorf("%w: payment is for order %q, not %q", ErrOutcomeMismatch, out.OrderID, o.ID)
	}
	if !out.Amount.Equal(o.Pricing.GrandTotal) {
		return fmt.Errorf("%w: paid %s, order total is %s", ErrOutcomeMismatch,
			out.Amount.StringFixed(2), o.Pricing.GrandTotal.StringFixed(2))
	}
	return nil
}

type EventKind string

const (
	EventPaymentCompleted EventKind = "payment_completed"
	EventPaymentDenied    EventKind = "payment_denied"
	EventUnknown          EventKind = "unknown"
)

type WebhookEvent struct {
	Kind EventKind
	// GatewayType is the provider's own event name.
	GatewayType string
	ResourceID  string
	OrderID     string
	// Outcome is set for completed payments.
	Outcome *Outcome
	Raw     json.RawMessage
}

// minorUnits converts an amount to the currency's smallest unit.
func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}

// parseAmount reads a gateway amount string; unparsable input yields zero,
// which never covers an order.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
