package order

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const idPrefix = "ord_"

type Status string

const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrOrderNotFound        = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrEmptyOrder           = fmt.Errorf("%w: order must have at least one item", domain.ErrValidation)
	ErrInvalidItem          = fmt.Errorf("%w: invalid order item", domain.ErrValidation)
	ErrInvalidStatus        = fmt.Errorf("%w: unknown order status", domain.ErrValidation)
	ErrInvalidAddress       = fmt.Errorf("%w: shipping address is incomplete", domain.ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unsupported payment method", domain.ErrValidation)
	ErrOrderAlreadyPaid     = fmt.Errorf("%w: order is already paid", domain.ErrValidation)
	ErrOrderCancelled       = fmt.Errorf("%w: order is already cancelled", domain.ErrInvalidTransition)
	ErrOrderDelivered       = fmt.Errorf("%w: order is already delivered", domain.ErrInvalidTransition)
	ErrStatusChanged        = fmt.Errorf("%w: order status changed concurrently", domain.ErrInvalidTransition)
)

// validTransitions defines allowed fulfillment transitions
var validTransitions = map[Status][]Status{
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// ParseStatus converts user input into a known Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

func (i Item) validate() error {
	switch {
	case strings.TrimSpace(i.ProductID) == "":
		return fmt.Errorf("%w: missing product id", ErrInvalidItem)
	case i.Quantity < 1:
		return fmt.Errorf("%w: %s has quantity %d", ErrInvalidItem, i.ProductID, i.Quantity)
	case i.UnitPrice.IsNegative():
		return fmt.Errorf("%w: %s has a negative price", ErrInvalidItem, i.ProductID)
	}
	return nil
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (a ShippingAddress) Validate() error {
	required := map[string]string{
		"first_name": a.FirstName,
		"last_name":  a.LastName,
		"address":    a.Address,
		"city":       a.City,
		"zip_code":   a.ZipCode,
		"country":    a.Country,
	}
	var missing []string
	for field, v := range required {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalidAddress, strings.Join(missing, ", "))
	}
	return nil
}

// Customer is the contact snapshot notifications are sent to.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// PaymentReceipt is the gateway confirmation recorded when an order is paid.
type PaymentReceipt struct {
	Gateway       string    `json:"gateway"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	PayerEmail    string    `json:"payer_email,omitempty"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Customer        Customer        `json:"customer"`
	Items           []Item          `json:"items"`
	Pricing         Pricing         `json:"pricing"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Status          Status          `json:"status"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentReceipt  *PaymentReceipt `json:"payment_receipt,omitempty"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// New builds an unpaid order in the processing state. Items are copied so
// later changes to the source slice do not leak into the snapshot.
func New(userID string, customer Customer, items []Item, addr ShippingAddress, paymentMethod string, policy PricingPolicy, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range items {
		if err := item.validate(); err != nil {
			return nil, err
		}
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentMethod) == "" {
		return nil, ErrInvalidPaymentMethod
	}

	snapshot := make([]Item, len(items))
	copy(snapshot, items)

	return &Order{
		ID:              NewID(),
		UserID:          userID,
		Customer:        customer,
		Items:           snapshot,
		Pricing:         policy.Price(snapshot),
		ShippingAddress: addr,
		PaymentMethod:   paymentMethod,
		Status:          StatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func NewID() string {
	return idPrefix + ulid.Make().String()
}

// ShortID is the human-facing reference used in emails and payment descriptions.
func (o *Order) ShortID() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[len(o.ID)-8:]
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	if o.Status.IsTerminal() {
		return false
	}
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionError returns an appropriate error for an invalid transition
func (o *Order) TransitionError(target Status) error {
	switch o.Status {
	case StatusCancelled:
		return ErrOrderCancelled
	case StatusDelivered:
		return ErrOrderDelivered
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", domain.ErrInvalidTransition, o.Status, target)
	}
}

// RecomputeTotals re-derives items and grand totals from the stored line
// items and components. Stored totals are never trusted as-is.
func (o *Order) RecomputeTotals() {
	o.Pricing.ItemsTotal = ItemsTotal(o.Items)
	o.Pricing.GrandTotal = o.Pricing.ItemsTotal.Add(o.Pricing.ShippingTotal).Add(o.Pricing.TaxTotal)
}

// ApplyStatus sets the status and its matching timestamp.
func (o *Order) ApplyStatus(status Status, at time.Time) {
	o.Status = status
	o.UpdatedAt = at
	t := at
	switch status {
	case StatusShipped:
		o.ShippedAt = &t
	case StatusDelivered:
		o.DeliveredAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
}

// ApplyPayment marks the order paid. Callers must have won the store's
// conditional update first.
func (o *Order) ApplyPayment(receipt PaymentReceipt, paidAt time.Time) {
	t := paidAt
	o.IsPaid = true
	o.PaidAt = &t
	o.PaymentReceipt = &receipt
	o.UpdatedAt = paidAt
}
