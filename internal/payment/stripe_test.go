package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type stubStripeSessions struct {
	created  *stripe.CheckoutSessionParams
	sessions map[string]*stripe.CheckoutSession
	err      error
}

func (s *stubStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (s *stubStripeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	return session, nil
}

func signedStripeEvent(t *testing.T, eventType stripe.EventType, session map[string]any) ([]byte, http.Header) {
	t.Helper()
	return signStripeEvent(t, testWebhookSecret, eventType, session)
}

func signStripeEvent(t *testing.T, secret string, eventType stripe.EventType, session map[string]any) ([]byte, http.Header) {
	t.Helper()
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        string(eventType),
		"api_version": "2020-08-27",
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	header := http.Header{}
	header.Set("Stripe-Signature", signed.Header)
	return signed.Payload, header
}

// ============================================
// CreatePayment Tests
// ============================================

func TestStripe_CreatePayment(t *testing.T) {
	sessions := &stubStripeSessions{}
	s := newStripe(sessions, testWebhookSecret)
	o := testOrder(t)

	pay, err := s.CreatePayment(context.Background(), NewCreateRequest(o, "USD", "https://shop.test"))

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", pay.GatewayPaymentID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", pay.ApprovalURL)

	params := sessions.created
	require.NotNil(t, params)
	assert.Equal(t, o.ID, stripe.StringValue(params.ClientReferenceID))
	assert.Equal(t, o.ID, params.Metadata["order_id"])
	assert.Equal(t, "buyer@example.com", stripe.StringValue(params.CustomerEmail))
	assert.Equal(t, "https://shop.test/payment/cancel", stripe.StringValue(params.CancelURL))

	// two products plus shipping and tax lines, summing to the grand total
	require.Len(t, params.LineItems, 4)
	var total int64
	for _, line := range params.LineItems {
		assert.Equal(t, "usd", stripe.StringValue(line.PriceData.Currency))
		total += stripe.Int64Value(line.PriceData.UnitAmount) * stripe.Int64Value(line.Quantity)
	}
	assert.Equal(t, int64(3200), total)
	assert.Equal(t, int64(1000), stripe.Int64Value(params.LineItems[0].PriceData.UnitAmount))
	assert.Equal(t, int64(2), stripe.Int64Value(params.LineItems[0].Quantity))
}

func TestStripe_CreatePayment_Error(t *testing.T) {
	s := newStripe(&stubStripeSessions{err: errors.New("api down")}, testWebhookSecret)

	_, err := s.CreatePayment(context.Background(), NewCreateRequest(testOrder(t), "USD", "https://shop.test"))

	assert.ErrorContains(t, err, "api down")
}

func TestNewStripe_RequiresKey(t *testing.T) {
	_, err := NewStripe(StripeConfig{APIKey: " "})
	assert.Error(t, err)
}

// ============================================
// ExecutePayment Tests
// ============================================

func TestStripe_ExecutePayment(t *testing.T) {
	sessions := &stubStripeSessions{sessions: map[string]*stripe.CheckoutSession{
		"cs_paid": {
			ID:                "cs_paid",
			ClientReferenceID: "ord_42",
			AmountTotal:       3200,
			PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
			PaymentIntent:     &stripe.PaymentIntent{ID: "pi_1"},
			CustomerDetails:   &stripe.CheckoutSessionCustomerDetails{Email: "buyer@example.com"},
		},
		"cs_unpaid": {ID: "cs_unpaid", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid},
	}}
	s := newStripe(sessions, testWebhookSecret)

	paid, err := s.ExecutePayment(context.Background(), "cs_paid", "")
	require.NoError(t, err)
	assert.True(t, paid.Approved)
	assert.Equal(t, "pi_1", paid.Receipt.TransactionID)
	assert.Equal(t, "stripe", paid.Receipt.Gateway)
	assert.Equal(t, "buyer@example.com", paid.Receipt.PayerEmail)
	assert.Equal(t, "ord_42", paid.OrderID)
	assert.Equal(t, "32.00", paid.Amount.StringFixed(2))

	unpaid, err := s.ExecutePayment(context.Background(), "cs_unpaid", "")
	require.NoError(t, err)
	assert.False(t, unpaid.Approved)
	assert.Equal(t, "cs_unpaid", unpaid.Receipt.TransactionID)

	_, err = s.ExecutePayment(context.Background(), "cs_missing", "")
	assert.Error(t, err)
}

// ============================================
// ParseWebhook Tests
// ============================================

func TestStripe_ParseWebhook_SessionCompleted(t *testing.T) {
	s := newStripe(&stubStripeSessions{}, testWebhookSecret)
	payload, header := signedStripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"client_reference_id": "ord_123",
		"payment_status":      "paid",
		"payment_intent":      "pi_9",
		"amount_total":        1999,
	})

	ev, err := s.ParseWebhook(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, EventPaymentCompleted, ev.Kind)
	assert.Equal(t, "cs_1", ev.ResourceID)
	assert.Equal(t, "ord_123", ev.OrderID)
	require.NotNil(t, ev.Outcome)
	assert.Equal(t, "pi_9", ev.Outcome.Receipt.TransactionID)
	assert.Equal(t, "ord_123", ev.Outcome.OrderID)
	assert.Equal(t, "19.99", ev.Outcome.Amount.StringFixed(2))
}

func TestStripe_ParseWebhook_CompletedButUnpaidIsIgnored(t *testing.T) {
	s := newStripe(&stubStripeSessions{}, testWebhookSecret)
	payload, header := signedStripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_2",
		"object":         "checkout.session",
		"metadata":       map[string]string{"order_id": "ord_meta"},
		"payment_status": "unpaid",
	})

	ev, err := s.ParseWebhook(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, EventUnknown, ev.Kind)
	assert.Equal(t, "ord_meta", ev.OrderID)
	assert.Nil(t, ev.Outcome)
}

func TestStripe_ParseWebhook_AsyncFailed(t *testing.T) {
	s := newStripe(&stubStripeSessions{}, testWebhookSecret)
	payload, header := signedStripeEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentFailed, map[string]any{
		"id":                  "cs_3",
		"object":              "checkout.session",
		"client_reference_id": "ord_9",
		"payment_status":      "unpaid",
	})

	ev, err := s.ParseWebhook(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, EventPaymentDenied, ev.Kind)
	assert.Equal(t, "ord_9", ev.OrderID)
}

func TestStripe_ParseWebhook_OtherEvent(t *testing.T) {
	s := newStripe(&stubStripeSessions{}, testWebhookSecret)
	payload, header := signedStripeEvent(t, stripe.EventType("customer.created"), map[string]any{"id": "cus_1"})

	ev, err := s.ParseWebhook(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, EventUnknown, ev.Kind)
	assert.Equal(t, "customer.created", ev.GatewayType)
}

func TestStripe_ParseWebhook_BadSignature(t *testing.T) {
	s := newStripe(&stubStripeSessions{}, "whsec_other")
	payload, header := signedStripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_1"})

	_, err := s.ParseWebhook(context.Background(), payload, header)

	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripe_ParseWebhook_NoSecretConfigured(t *testing.T) {
	s := newStripe(&stubStripeSessions{}, "")
	// Signed with the same empty secret, so only the missing configuration
	// can reject it.
	payload, header := signStripeEvent(t, "", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"client_reference_id": "ord_123",
		"payment_status":      "paid",
	})

	ev, err := s.ParseWebhook(context.Background(), payload, header)

	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, ev)
}
