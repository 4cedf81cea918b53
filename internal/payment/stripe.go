package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const (
	stripeName = "stripe"

	metadataOrderID = "order_id"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
}

// Stripe implements Gateway with Stripe Checkout Sessions. The session id is
// the gateway payment id.
type Stripe struct {
	sessions      stripeSessionAPI
	webhookSecret string
	now           func() time.Time
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, cfg.Backends)
	return newStripe(sc.CheckoutSessions, cfg.WebhookSecret), nil
}

func newStripe(sessions stripeSessionAPI, webhookSecret string) *Stripe {
	return &Stripe{
		sessions:      sessions,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

func (s *Stripe) Name() string { return stripeName }

func (s *Stripe) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	currency := strings.ToLower(req.Currency)

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items)+2)
	for _, item := range req.Items {
		lineItems = append(lineItems, stripeLine(item.Name, currency, minorUnits(item.UnitPrice), int64(item.Quantity)))
	}
	if req.ShippingTotal.IsPositive() {
		lineItems = append(lineItems, stripeLine("Shipping", currency, minorUnits(req.ShippingTotal), 1))
	}
	if req.TaxTotal.IsPositive() {
		lineItems = append(lineItems, stripeLine("Tax", currency, minorUnits(req.TaxTotal), 1))
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.ReturnURL + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems:         lineItems,
		Metadata:          map[string]string{metadataOrderID: req.OrderID},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.OrderID)
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	session, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &Payment{GatewayPaymentID: session.ID, ApprovalURL: session.URL}, nil
}

func (s *Stripe) ExecutePayment(ctx context.Context, gatewayPaymentID, _ string) (*Outcome, error) {
	if gatewayPaymentID == "" {
		return nil, errors.New("stripe: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := s.sessions.Get(gatewayPaymentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return s.outcome(session), nil
}

func (s *Stripe) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("%w: no signing secret configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		Kind:        EventUnknown,
		GatewayType: string(event.Type),
		Raw:         json.RawMessage(payload),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return out, nil
	}

	var session stripe.CheckoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil {
		return nil, ErrMalformedWebhook
	}
	out.ResourceID = session.ID
	out.OrderID = sessionOrderID(&session)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		// A completed session with a delayed payment method is still unpaid;
		// the async_payment_succeeded event settles it later.
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Kind = EventPaymentCompleted
			out.Outcome = s.outcome(&session)
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		out.Kind = EventPaymentDenied
	}
	return out, nil
}

func (s *Stripe) outcome(session *stripe.CheckoutSession) *Outcome {
	txID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		txID = session.PaymentIntent.ID
	}
	var email string
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}

	return &Outcome{
		Approved: session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		OrderID:  sessionOrderID(session),
		Amount:   fromMinorUnits(session.AmountTotal),
		Receipt: order.PaymentReceipt{
			Gateway:       stripeName,
			TransactionID: txID,
			Status:        string(session.PaymentStatus),
			PayerEmail:    email,
			ConfirmedAt:   s.now().UTC(),
		},
	}
}

func sessionOrderID(session *stripe.CheckoutSession) string {
	if session.ClientReferenceID != "" {
		return session.ClientReferenceID
	}
	return session.Metadata[metadataOrderID]
}

func stripeLine(name, currency string, unitAmount, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(quantity),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(unitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
	}
}
