package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/google/uuid"
)

const fakeName = "fake"

// Fake is an in-process gateway for local runs and tests. Every payment is
// approved unless Decline is set.
type Fake struct {
	mu       sync.Mutex
	payments map[string]CreateRequest

	Decline    bool
	CreateErr  error
	ExecuteErr error
	// Delay blocks ExecutePayment, honouring context cancellation.
	Delay time.Duration

	CreateCalls  int
	ExecuteCalls int
}

func NewFake() *Fake {
	return &Fake{payments: make(map[string]CreateRequest)}
}

func (f *Fake) Name() string { return fakeName }

func (f *Fake) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	id := "fake_" + uuid.NewString()
	f.payments[id] = req

	approval := req.ReturnURL
	if u, err := url.Parse(req.ReturnURL); err == nil {
		q := u.Query()
		q.Set("paymentId", id)
		q.Set("PayerID", "fake-payer")
		u.RawQuery = q.Encode()
		approval = u.String()
	}
	return &Payment{GatewayPaymentID: id, ApprovalURL: approval}, nil
}

func (f *Fake) ExecutePayment(ctx context.Context, gatewayPaymentID, payerReference string) (*Outcome, error) {
	f.mu.Lock()
	f.ExecuteCalls++
	delay, execErr, decline := f.Delay, f.ExecuteErr, f.Decline
	req, known := f.payments[gatewayPaymentID]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if execErr != nil {
		return nil, execErr
	}
	if !known {
		return nil, fmt.Errorf("fake: unknown payment %s", gatewayPaymentID)
	}

	state := "approved"
	if decline {
		state = "failed"
	}
	return &Outcome{
		Approved: !decline,
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Receipt: order.PaymentReceipt{
			Gateway:       fakeName,
			TransactionID: gatewayPaymentID,
			Status:        state,
			PayerEmail:    payerReference,
			ConfirmedAt:   time.Now().UTC(),
		},
	}, nil
}

// FakeWebhook is the payload accepted by Fake.ParseWebhook. For a payment
// created through this Fake the recorded order and amount win over the
// payload's.
type FakeWebhook struct {
	Type      EventKind `json:"type"`
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Amount    string    `json:"amount,omitempty"`
}

func (f *Fake) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	var hook FakeWebhook
	if err := json.Unmarshal(payload, &hook); err != nil || hook.Type == "" {
		return nil, ErrMalformedWebhook
	}

	event := &WebhookEvent{
		Kind:        EventUnknown,
		GatewayType: string(hook.Type),
		ResourceID:  hook.PaymentID,
		OrderID:     hook.OrderID,
		Raw:         json.RawMessage(payload),
	}
	switch hook.Type {
	case EventPaymentCompleted:
		paidFor, amount := hook.OrderID, parseAmount(hook.Amount)
		if req, ok := f.Request(hook.PaymentID); ok {
			paidFor, amount = req.OrderID, req.Amount
		}
		event.Kind = EventPaymentCompleted
		event.Outcome = &Outcome{
			Approved: true,
			OrderID:  paidFor,
			Amount:   amount,
			Receipt: order.PaymentReceipt{
				Gateway:       fakeName,
				TransactionID: hook.PaymentID,
				Status:        "completed",
				ConfirmedAt:   time.Now().UTC(),
			},
		}
	case EventPaymentDenied:
		event.Kind = EventPaymentDenied
	}
	return event, nil
}

// Request returns the CreateRequest recorded for a payment id.
func (f *Fake) Request(gatewayPaymentID string) (CreateRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.payments[gatewayPaymentID]
	return req, ok
}
