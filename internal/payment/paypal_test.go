package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paypalServer fakes the PayPal REST endpoints used by the adapter.
type paypalServer struct {
	*httptest.Server

	tokenCalls   int
	lastCreate   map[string]any
	lastPayerID  string
	executeState string
	verifyStatus string
	authHeaders  []string
	failCreate   bool
}

func newPayPalServer(t *testing.T) *paypalServer {
	t.Helper()
	ps := &paypalServer{executeState: "approved", verifyStatus: "SUCCESS"}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		ps.tokenCalls++
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		ps.authHeaders = append(ps.authHeaders, r.Header.Get("Authorization"))
		if ps.failCreate {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"name":"VALIDATION_ERROR","message":"Invalid request","debug_id":"dbg-1"}`)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ps.lastCreate))
		_, _ = io.WriteString(w, `{"id":"PAY-1","state":"created","links":[
			{"href":"https://api/self","rel":"self","method":"GET"},
			{"href":"https://paypal.test/approve?token=EC-1","rel":"approval_url","method":"REDIRECT"}]}`)
	})
	mux.HandleFunc("/v1/payments/payment/PAY-1/execute", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ps.lastPayerID = body["payer_id"]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "PAY-1",
			"state":        ps.executeState,
			"payer":        map[string]any{"payer_info": map[string]string{"email": "buyer@example.com"}},
			"transactions": []map[string]any{{
				"invoice_number": "ord_42",
				"amount":         map[string]string{"total": "32.00", "currency": "USD"},
			}},
		})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": ps.verifyStatus})
	})

	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func newTestPayPal(t *testing.T, ps *paypalServer, webhookID string) *PayPal {
	t.Helper()
	p, err := NewPayPal(PayPalConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      ps.URL,
		WebhookID:    webhookID,
	})
	require.NoError(t, err)
	return p
}

const testWebhookID = "WH-CONFIG-1"

// signedHeader carries the transmission headers PayPal attaches to a webhook.
func signedHeader() http.Header {
	header := http.Header{}
	header.Set("PAYPAL-TRANSMISSION-SIG", "sig")
	header.Set("PAYPAL-TRANSMISSION-ID", "tid")
	return header
}

func testOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New("user-1",
		order.Customer{Email: "buyer@example.com"},
		[]order.Item{
			{ProductID: "A", Name: "Widget", UnitPrice: decimal.NewFromInt(10), Quantity: 2, Image: "/a.png"},
			{ProductID: "B", Name: "Gadget", UnitPrice: decimal.NewFromInt(5), Quantity: 1, Image: "/b.png"},
		},
		order.ShippingAddress{FirstName: "Jane", LastName: "Doe", Address: "1 Main St", City: "Springfield", ZipCode: "12345", Country: "US"},
		"paypal",
		order.PricingPolicy{ShippingFlat: decimal.NewFromInt(5), TaxRate: decimal.RequireFromString("0.08")},
		time.Now(),
	)
	require.NoError(t, err)
	return o
}

// ============================================
// Constructor Tests
// ============================================

func TestNewPayPal_RequiresCredentials(t *testing.T) {
	_, err := NewPayPal(PayPalConfig{ClientID: "id"})
	assert.Error(t, err)
}

func TestNewPayPal_ModeSelectsBaseURL(t *testing.T) {
	sandbox, err := NewPayPal(PayPalConfig{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, PayPalSandboxURL, sandbox.baseURL)

	live, err := NewPayPal(PayPalConfig{ClientID: "id", ClientSecret: "secret", Mode: "live"})
	require.NoError(t, err)
	assert.Equal(t, PayPalLiveURL, live.baseURL)
}

// ============================================
// CreatePayment Tests
// ============================================

func TestPayPal_CreatePayment(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, "")
	o := testOrder(t)

	pay, err := p.CreatePayment(context.Background(), NewCreateRequest(o, "usd", "https://shop.test/"))

	require.NoError(t, err)
	assert.Equal(t, "PAY-1", pay.GatewayPaymentID)
	assert.Equal(t, "https://paypal.test/approve?token=EC-1", pay.ApprovalURL)
	assert.Equal(t, []string{"Bearer tok-123"}, ps.authHeaders)

	assert.Equal(t, "sale", ps.lastCreate["intent"])
	redirects := ps.lastCreate["redirect_urls"].(map[string]any)
	assert.Equal(t, "https://shop.test/payment/success?orderId="+o.ID, redirects["return_url"])
	assert.Equal(t, "https://shop.test/payment/cancel", redirects["cancel_url"])

	tx := ps.lastCreate["transactions"].([]any)[0].(map[string]any)
	assert.Equal(t, "Order #"+o.ShortID(), tx["description"])
	assert.Equal(t, o.ID, tx["invoice_number"])
	amount := tx["amount"].(map[string]any)
	assert.Equal(t, "USD", amount["currency"])
	assert.Equal(t, "32.00", amount["total"])
	details := amount["details"].(map[string]any)
	assert.Equal(t, "25.00", details["subtotal"])
	assert.Equal(t, "5.00", details["shipping"])
	assert.Equal(t, "2.00", details["tax"])
	items := tx["item_list"].(map[string]any)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "10.00", items[0].(map[string]any)["price"])
	assert.Equal(t, "A", items[0].(map[string]any)["sku"])
}

func TestPayPal_CreatePayment_ReusesToken(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, "")
	req := NewCreateRequest(testOrder(t), "USD", "https://shop.test")

	_, err := p.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	_, err = p.CreatePayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, ps.tokenCalls)
}

func TestPayPal_CreatePayment_APIError(t *testing.T) {
	ps := newPayPalServer(t)
	ps.failCreate = true
	p := newTestPayPal(t, ps, "")

	_, err := p.CreatePayment(context.Background(), NewCreateRequest(testOrder(t), "USD", "https://shop.test"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "dbg-1")
}

// ============================================
// ExecutePayment Tests
// ============================================

func TestPayPal_ExecutePayment_Approved(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, "")

	out, err := p.ExecutePayment(context.Background(), "PAY-1", "PAYER-9")

	require.NoError(t, err)
	assert.True(t, out.Approved)
	assert.Equal(t, "PAYER-9", ps.lastPayerID)
	assert.Equal(t, "paypal", out.Receipt.Gateway)
	assert.Equal(t, "PAY-1", out.Receipt.TransactionID)
	assert.Equal(t, "approved", out.Receipt.Status)
	assert.Equal(t, "buyer@example.com", out.Receipt.PayerEmail)
	assert.Equal(t, "ord_42", out.OrderID)
	assert.Equal(t, "32.00", out.Amount.StringFixed(2))
}

func TestPayPal_ExecutePayment_NotApproved(t *testing.T) {
	ps := newPayPalServer(t)
	ps.executeState = "failed"
	p := newTestPayPal(t, ps, "")

	out, err := p.ExecutePayment(context.Background(), "PAY-1", "PAYER-9")

	require.NoError(t, err)
	assert.False(t, out.Approved)
}

func TestPayPal_ExecutePayment_UnknownPayment(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, "")

	_, err := p.ExecutePayment(context.Background(), "PAY-404", "PAYER-9")

	assert.Error(t, err)
}

// ============================================
// ParseWebhook Tests
// ============================================

func TestPayPal_ParseWebhook_CaptureCompleted(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, testWebhookID)
	payload := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED",
		"resource":{"id":"CAP-1","status":"COMPLETED","invoice_id":"ord_123","amount":{"value":"19.99","currency_code":"USD"}}}`)

	ev, err := p.ParseWebhook(context.Background(), payload, signedHeader())

	require.NoError(t, err)
	assert.Equal(t, EventPaymentCompleted, ev.Kind)
	assert.Equal(t, "CAP-1", ev.ResourceID)
	assert.Equal(t, "ord_123", ev.OrderID)
	require.NotNil(t, ev.Outcome)
	assert.True(t, ev.Outcome.Approved)
	assert.Equal(t, "COMPLETED", ev.Outcome.Receipt.Status)
	assert.Equal(t, "ord_123", ev.Outcome.OrderID)
	assert.Equal(t, "19.99", ev.Outcome.Amount.StringFixed(2))
}

func TestPayPal_ParseWebhook_SaleCompletedUsesInvoiceNumber(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, testWebhookID)
	payload := []byte(`{"event_type":"PAYMENT.SALE.COMPLETED",
		"resource":{"id":"SALE-1","state":"completed","parent_payment":"PAY-1","invoice_number":"ord_456","amount":{"total":"7.50"}}}`)

	ev, err := p.ParseWebhook(context.Background(), payload, signedHeader())

	require.NoError(t, err)
	assert.Equal(t, EventPaymentCompleted, ev.Kind)
	assert.Equal(t, "ord_456", ev.OrderID)
	assert.Equal(t, "completed", ev.Outcome.Receipt.Status)
	assert.Equal(t, "7.50", ev.Outcome.Amount.StringFixed(2))
}

func TestPayPal_ParseWebhook_DeniedAndUnknown(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, testWebhookID)

	denied, err := p.ParseWebhook(context.Background(),
		[]byte(`{"event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-2"}}`), signedHeader())
	require.NoError(t, err)
	assert.Equal(t, EventPaymentDenied, denied.Kind)
	assert.Nil(t, denied.Outcome)

	other, err := p.ParseWebhook(context.Background(),
		[]byte(`{"event_type":"BILLING.PLAN.CREATED","resource":{}}`), signedHeader())
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, other.Kind)
	assert.Equal(t, "BILLING.PLAN.CREATED", other.GatewayType)
}

func TestPayPal_ParseWebhook_Malformed(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, testWebhookID)

	_, err := p.ParseWebhook(context.Background(), []byte(`not json`), signedHeader())

	assert.ErrorIs(t, err, ErrMalformedWebhook)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPayPal_ParseWebhook_Verification(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, testWebhookID)
	payload := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","invoice_id":"ord_1"}}`)

	_, err := p.ParseWebhook(context.Background(), payload, signedHeader())
	require.NoError(t, err)

	ps.verifyStatus = "FAILURE"
	_, err = p.ParseWebhook(context.Background(), payload, signedHeader())
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.ParseWebhook(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPayPal_ParseWebhook_NoWebhookIDConfigured(t *testing.T) {
	ps := newPayPalServer(t)
	p := newTestPayPal(t, ps, "")
	payload := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED",
		"resource":{"id":"CAP-1","status":"COMPLETED","invoice_id":"ord_1","amount":{"value":"32.00"}}}`)

	for _, header := range []http.Header{{}, signedHeader()} {
		ev, err := p.ParseWebhook(context.Background(), payload, header)

		assert.ErrorIs(t, err, ErrInvalidSignature)
		assert.Nil(t, ev)
	}
}
