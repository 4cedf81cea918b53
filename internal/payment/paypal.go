package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"
	PayPalLiveURL    = "https://api-m.paypal.com"

	paypalName = "paypal"
)

// PayPal webhook event types
const (
	PayPalCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	PayPalCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	PayPalSaleCompleted    = "PAYMENT.SALE.COMPLETED"
	PayPalSaleDenied       = "PAYMENT.SALE.DENIED"
)

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	// Mode is "sandbox" or "live". BaseURL overrides it when set.
	Mode    string
	BaseURL string
	// WebhookID identifies the webhook registration signatures are checked
	// against. Without it every webhook is rejected.
	WebhookID  string
	HTTPClient *http.Client
}

// PayPal talks to the PayPal REST v1 payments API.
type PayPal struct {
	baseURL   string
	webhookID string
	client    *http.Client
	now       func() time.Time
}

func NewPayPal(cfg PayPalConfig) (*PayPal, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = PayPalSandboxURL
		if cfg.Mode == "live" {
			baseURL = PayPalLiveURL
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &PayPal{
		baseURL:   baseURL,
		webhookID: cfg.WebhookID,
		client:    cc.Client(ctx),
		now:       time.Now,
	}, nil
}

func (p *PayPal) Name() string { return paypalName }

type paypalAmount struct {
	Currency string               `json:"currency"`
	Total    string               `json:"total"`
	Details  *paypalAmountDetails `json:"details,omitempty"`
}

type paypalAmountDetails struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
}

type paypalItem struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type paypalTransaction struct {
	Amount        paypalAmount    `json:"amount"`
	Description   string          `json:"description,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	ItemList      *paypalItemList `json:"item_list,omitempty"`
}

type paypalItemList struct {
	Items []paypalItem `json:"items"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paypalPayment struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Payer struct {
		PayerInfo struct {
			Email   string `json:"email"`
			PayerID string `json:"payer_id"`
		} `json:"payer_info"`
	} `json:"payer"`
	Transactions []paypalTransaction `json:"transactions"`
	Links        []paypalLink        `json:"links"`
}

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

func (p *PayPal) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	items := make([]paypalItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, paypalItem{
			Name:     item.Name,
			SKU:      item.SKU,
			Price:    item.UnitPrice.StringFixed(2),
			Currency: req.Currency,
			Quantity: item.Quantity,
		})
	}

	tx := paypalTransaction{
		Amount: paypalAmount{
			Currency: req.Currency,
			Total:    req.Amount.StringFixed(2),
			Details: &paypalAmountDetails{
				Subtotal: req.ItemsTotal.StringFixed(2),
				Shipping: req.ShippingTotal.StringFixed(2),
				Tax:      req.TaxTotal.StringFixed(2),
			},
		},
		Description:   req.Description,
		InvoiceNumber: req.OrderID,
		ItemList:      &paypalItemList{Items: items},
	}

	body := map[string]any{
		"intent": "sale",
		"payer":  map[string]string{"payment_method": "paypal"},
		"redirect_urls": map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
		"transactions": []paypalTransaction{tx},
	}

	var created paypalPayment
	if err := p.do(ctx, http.MethodPost, "/v1/payments/payment", body, &created); err != nil {
		return nil, fmt.Errorf("paypal: create payment: %w", err)
	}

	for _, link := range created.Links {
		if link.Rel == "approval_url" {
			return &Payment{GatewayPaymentID: created.ID, ApprovalURL: link.Href}, nil
		}
	}
	return nil, fmt.Errorf("paypal: payment %s has no approval url", created.ID)
}

func (p *PayPal) ExecutePayment(ctx context.Context, gatewayPaymentID, payerReference string) (*Outcome, error) {
	if gatewayPaymentID == "" {
		return nil, errors.New("paypal: payment id is required")
	}

	var executed paypalPayment
	path := "/v1/payments/payment/" + url.PathEscape(gatewayPaymentID) + "/execute"
	if err := p.do(ctx, http.MethodPost, path, map[string]string{"payer_id": payerReference}, &executed); err != nil {
		return nil, fmt.Errorf("paypal: execute payment: %w", err)
	}

	var paidFor string
	var amount decimal.Decimal
	if len(executed.Transactions) > 0 {
		paidFor = executed.Transactions[0].InvoiceNumber
		amount = parseAmount(executed.Transactions[0].Amount.Total)
	}

	return &Outcome{
		Approved: executed.State == "approved",
		OrderID:  paidFor,
		Amount:   amount,
		Receipt: order.PaymentReceipt{
			Gateway:       paypalName,
			TransactionID: executed.ID,
			Status:        executed.State,
			PayerEmail:    executed.Payer.PayerInfo.Email,
			ConfirmedAt:   p.now().UTC(),
		},
	}, nil
}

type paypalWebhook struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// paypalResource covers the fields shared by v1 sale and v2 capture resources.
type paypalResource struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	Status        string `json:"status"`
	ParentPayment string `json:"parent_payment"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceID     string `json:"invoice_id"`
	Custom        string `json:"custom"`
	CustomID      string `json:"custom_id"`
	// v1 sales carry amount.total, v2 captures amount.value.
	Amount struct {
		Total string `json:"total"`
		Value string `json:"value"`
	} `json:"amount"`
}

func (r paypalResource) amount() decimal.Decimal {
	if r.Amount.Total != "" {
		return parseAmount(r.Amount.Total)
	}
	return parseAmount(r.Amount.Value)
}

func (r paypalResource) orderID() string {
	for _, v := range []string{r.InvoiceNumber, r.InvoiceID, r.CustomID, r.Custom} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *PayPal) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if p.webhookID == "" {
		return nil, fmt.Errorf("%w: no webhook id configured", ErrInvalidSignature)
	}

	var hook paypalWebhook
	if err := json.Unmarshal(payload, &hook); err != nil || hook.EventType == "" {
		return nil, ErrMalformedWebhook
	}
	if err := p.verifySignature(ctx, payload, header); err != nil {
		return nil, err
	}

	var res paypalResource
	if len(hook.Resource) > 0 {
		if err := json.Unmarshal(hook.Resource, &res); err != nil {
			return nil, ErrMalformedWebhook
		}
	}

	event := &WebhookEvent{
		Kind:        EventUnknown,
		GatewayType: hook.EventType,
		ResourceID:  res.ID,
		OrderID:     res.orderID(),
		Raw:         json.RawMessage(payload),
	}

	switch hook.EventType {
	case PayPalCaptureCompleted, PayPalSaleCompleted:
		status := res.Status
		if status == "" {
			status = res.State
		}
		event.Kind = EventPaymentCompleted
		event.Outcome = &Outcome{
			Approved: true,
			OrderID:  event.OrderID,
			Amount:   res.amount(),
			Receipt: order.PaymentReceipt{
				Gateway:       paypalName,
				TransactionID: res.ID,
				Status:        status,
				ConfirmedAt:   p.now().UTC(),
			},
		}
	case PayPalCaptureDenied, PayPalSaleDenied:
		event.Kind = EventPaymentDenied
	}
	return event, nil
}

// verifySignature asks PayPal to check the transmission headers against the
// configured webhook.
func (p *PayPal) verifySignature(ctx context.Context, payload []byte, header http.Header) error {
	body := map[string]any{
		"auth_algo":         header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": header.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(payload),
	}
	if body["transmission_sig"] == "" {
		return ErrInvalidSignature
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, &result); err != nil {
		return fmt.Errorf("paypal: verify webhook signature: %w", err)
	}
	if result.VerificationStatus != "SUCCESS" {
		return ErrInvalidSignature
	}
	return nil
}

func (p *PayPal) do(ctx context.Context, method, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe paypalError
		if json.Unmarshal(respBody, &pe) == nil && pe.Name != "" {
			return fmt.Errorf("status %d: %s: %s (debug_id %s)", resp.StatusCode, pe.Name, pe.Message, pe.DebugID)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
