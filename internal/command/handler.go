package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/notification"
	"github.com/example/storefront-orders/internal/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/example/storefront-orders/internal/command")

var (
	ErrNotOrderOwner    = fmt.Errorf("%w: order belongs to another user", domain.ErrUnauthorized)
	ErrAdminRequired    = fmt.Errorf("%w: admin role required", domain.ErrUnauthorized)
	ErrMissingPaymentID = fmt.Errorf("%w: gateway payment id is required", domain.ErrValidation)
	ErrUnknownGateway   = fmt.Errorf("payment gateway %w", domain.ErrNotFound)
)

// Options carries the storefront settings the controller needs.
type Options struct {
	Pricing     order.PricingPolicy
	Currency    string
	FrontendURL string
}

// Handler drives the order lifecycle: creation from the cart, payment
// through a gateway, and admin fulfillment transitions.
type Handler struct {
	carts       *cart.Service
	orders      store.OrderStore
	gateways    map[string]payment.Gateway
	notifier    notification.Notifier
	pricing     order.PricingPolicy
	currency    string
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time

	settling singleflight.Group
}

func NewHandler(
	carts *cart.Service,
	orders store.OrderStore,
	gateways []payment.Gateway,
	notifier notification.Notifier,
	opts Options,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier(logger)
	}
	currency := opts.Currency
	if currency == "" {
		currency = "USD"
	}

	byName := make(map[string]payment.Gateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}

	return &Handler{
		carts:       carts,
		orders:      orders,
		gateways:    byName,
		notifier:    notifier,
		pricing:     opts.Pricing,
		currency:    currency,
		frontendURL: opts.FrontendURL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PaymentMethods lists the configured gateway names.
func (h *Handler) PaymentMethods() []string {
	names := make([]string, 0, len(h.gateways))
	for name := range h.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GatewayStates reports the circuit breaker state of each guarded gateway.
func (h *Handler) GatewayStates() map[string]string {
	gateways := make([]payment.Gateway, 0, len(h.gateways))
	for _, gw := range h.gateways {
		gateways = append(gateways, gw)
	}
	return payment.BreakerStates(gateways...)
}

// CreateOrder turns the user's cart into an unpaid order. The cart is
// cleared only after the order is persisted.
func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	c := h.carts.Get(ctx, cmd.UserID)
	if c.IsEmpty() {
		return nil, order.ErrEmptyOrder
	}

	method := strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	if _, ok := h.gateways[method]; !ok {
		return nil, fmt.Errorf("%w: %q", order.ErrInvalidPaymentMethod, cmd.PaymentMethod)
	}

	items := make([]order.Item, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, order.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}

	customer := cmd.Customer
	if customer.Email == "" {
		customer.Email = cmd.ShippingAddress.Email
	}

	o, err := order.New(cmd.UserID, customer, items, cmd.ShippingAddress, method, h.pricing, h.now())
	if err != nil {
		return nil, err
	}

	if err := h.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := h.carts.Clear(ctx, cmd.UserID); err != nil {
		h.logger.Warn("failed to clear cart after order creation",
			zap.String("order_id", o.ID),
			zap.String("user_id", cmd.UserID),
			zap.Error(err),
		)
	}

	h.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("grand_total", o.Pricing.GrandTotal.StringFixed(2)),
	)
	h.notify(ctx, order.EventOrderPlaced, o)
	return o, nil
}

// BeginPayment asks the order's gateway for an approval URL. The order is
// not modified.
func (h *Handler) BeginPayment(ctx context.Context, cmd BeginPayment) (*payment.Payment, error) {
	ctx, span := tracer.Start(ctx, "order.begin_payment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID))

	o, err := h.loadOwned(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return nil, err
	}
	if o.IsPaid {
		return nil, order.ErrOrderAlreadyPaid
	}
	if o.Status == order.StatusCancelled {
		return nil, order.ErrOrderCancelled
	}

	gw, err := h.gateway(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	p, err := gw.CreatePayment(ctx, payment.NewCreateRequest(o, h.currency, h.frontendURL))
	if err != nil {
		h.logger.Error("payment creation failed",
			zap.String("order_id", o.ID),
			zap.String("gateway", gw.Name()),
			zap.Error(err),
		)
		return nil, gatewayError(err)
	}

	h.logger.Info("payment created",
		zap.String("order_id", o.ID),
		zap.String("gateway", gw.Name()),
		zap.String("gateway_payment_id", p.GatewayPaymentID),
	)
	return p, nil
}

// ConfirmPayment executes a payer-approved payment. An already paid order is
// returned as-is without contacting the gateway. Any gateway failure leaves
// the order untouched.
func (h *Handler) ConfirmPayment(ctx context.Context, cmd ConfirmPayment) (*order.Order, error) {
	ctx, span := tracer.Start(ctx, "order.confirm_payment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID))

	o, err := h.loadOwned(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return nil, err
	}
	if o.IsPaid {
		return o, nil
	}
	if o.Status == order.StatusCancelled {
		return nil, order.ErrOrderCancelled
	}
	if strings.TrimSpace(cmd.GatewayPaymentID) == "" {
		return nil, ErrMissingPaymentID
	}

	gw, err := h.gateway(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	outcome, err := gw.ExecutePayment(ctx, cmd.GatewayPaymentID, cmd.PayerReference)
	if err != nil {
		h.logger.Error("payment execution failed",
			zap.String("order_id", o.ID),
			zap.String("gateway", gw.Name()),
			zap.Error(err),
		)
		return nil, gatewayError(err)
	}
	if outcome == nil || !outcome.Approved {
		status := ""
		if outcome != nil {
			status = outcome.Receipt.Status
		}
		h.logger.Warn("payment not approved",
			zap.String("order_id", o.ID),
			zap.String("gateway", gw.Name()),
			zap.String("status", status),
		)
		return nil, fmt.Errorf("%w: gateway reported %q", domain.ErrPaymentNotApproved, status)
	}
	if err := outcome.Covers(o); err != nil {
		h.logger.Warn("payment does not match order",
			zap.String("order_id", o.ID),
			zap.String("gateway", gw.Name()),
			zap.String("gateway_payment_id", cmd.GatewayPaymentID),
			zap.Error(err),
		)
		return nil, err
	}

	return h.settle(ctx, o.ID, *outcome)
}

// UpdateFulfillmentStatus moves an order along the fulfillment state machine.
// Only admins may call it.
func (h *Handler) UpdateFulfillmentStatus(ctx context.Context, cmd UpdateFulfillmentStatus) (*order.Order, error) {
	if !cmd.Actor.IsAdmin() {
		return nil, ErrAdminRequired
	}

	target, err := order.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	o, err := h.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(target) {
		return nil, o.TransitionError(target)
	}

	from := o.Status
	applied, err := h.orders.UpdateStatus(ctx, o.ID, from, target, h.now())
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !applied {
		return nil, order.ErrStatusChanged
	}

	updated, err := h.orders.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("order status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("admin_id", cmd.Actor.UserID),
	)
	if event, ok := order.StatusEvent(target); ok {
		h.notify(ctx, event, updated)
	}
	return updated, nil
}

// HandleGatewayWebhook applies an asynchronous payment notification. Events
// that cannot be matched to an order are logged and acknowledged so the
// gateway stops retrying them.
func (h *Handler) HandleGatewayWebhook(ctx context.Context, gatewayName string, payload []byte, header http.Header) error {
	ctx, span := tracer.Start(ctx, "order.gateway_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("payment.gateway", gatewayName))

	gw, err := h.gateway(gatewayName)
	if err != nil {
		return err
	}

	event, err := gw.ParseWebhook(ctx, payload, header)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			h.logger.Warn("rejected gateway webhook", zap.String("gateway", gatewayName), zap.Error(err))
			return err
		}
		return gatewayError(err)
	}

	log := h.logger.With(
		zap.String("gateway", gatewayName),
		zap.String("event_type", event.GatewayType),
		zap.String("resource_id", event.ResourceID),
		zap.String("order_id", event.OrderID),
	)

	switch event.Kind {
	case payment.EventPaymentCompleted:
		if event.OrderID == "" || event.Outcome == nil || !event.Outcome.Approved {
			log.Warn("completed payment event without order reference")
			return nil
		}
		o, err := h.orders.Get(ctx, event.OrderID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("payment event for unknown order")
			return nil
		}
		if err != nil {
			return err
		}
		if err := event.Outcome.Covers(o); err != nil {
			log.Warn("payment event does not match order", zap.Error(err))
			return nil
		}
		if _, err := h.settle(ctx, o.ID, *event.Outcome); err != nil {
			return err
		}
		return nil
	case payment.EventPaymentDenied:
		log.Warn("payment denied by gateway")
		return nil
	default:
		log.Info("ignoring gateway event")
		return nil
	}
}

// settle records an approved outcome. Execute and webhook deliveries share
// this path; the store's conditional write guarantees a single paid
// transition and singleflight collapses concurrent attempts in-process.
// The shared call ignores the first caller's cancellation.
func (h *Handler) settle(ctx context.Context, orderID string, outcome payment.Outcome) (*order.Order, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := h.settling.Do(orderID, func() (any, error) {
		ctx, span := tracer.Start(shared, "order.settle")
		defer span.End()
		span.SetAttributes(attribute.String("order.id", orderID))

		applied, err := h.orders.MarkPaid(ctx, orderID, outcome.Receipt, h.now())
		if err != nil {
			return nil, fmt.Errorf("mark order paid: %w", err)
		}
		span.SetAttributes(attribute.Bool("payment.applied", applied))

		o, err := h.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if applied {
			h.logger.Info("order paid",
				zap.String("order_id", orderID),
				zap.String("gateway", outcome.Receipt.Gateway),
				zap.String("transaction_id", outcome.Receipt.TransactionID),
			)
			h.notify(ctx, order.EventPaymentConfirmed, o)
		} else {
			h.logger.Debug("order already paid", zap.String("order_id", orderID))
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*order.Order), nil
}

func (h *Handler) loadOwned(ctx context.Context, orderID string, actor domain.Actor) (*order.Order, error) {
	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

func (h *Handler) gateway(name string) (payment.Gateway, error) {
	gw, ok := h.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return gw, nil
}

// notify dispatches best-effort; failures are logged only.
func (h *Handler) notify(ctx context.Context, kind order.Event, o *order.Order) {
	if err := h.notifier.Notify(ctx, notification.New(kind, o)); err != nil {
		h.logger.Warn("notification dispatch failed",
			zap.String("order_id", o.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func gatewayError(err error) error {
	if errors.Is(err, domain.ErrPaymentGateway) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPaymentGateway, err)
}
