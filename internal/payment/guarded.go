package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/example/storefront-orders/internal/payment")

type GuardConfig struct {
	// Timeout bounds every gateway call.
	Timeout time.Duration
	// MaxFailures consecutive failures open the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

// Guarded wraps a Gateway with a per-call timeout, a circuit breaker and a
// tracing span.
type Guarded struct {
	next    Gateway
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

func NewGuarded(next Gateway, cfg GuardConfig, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	g := &Guarded{next: next, timeout: cfg.Timeout, logger: logger}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// Rejected webhooks say nothing about the gateway's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway circuit state changed",
				zap.String("gateway", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

func (g *Guarded) Name() string { return g.next.Name() }

func (g *Guarded) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	v, err := g.call(ctx, "payment.create", func(ctx context.Context) (any, error) {
		return g.next.CreatePayment(ctx, req)
	}, attribute.String("order.id", req.OrderID))
	if err != nil {
		return nil, err
	}
	return v.(*Payment), nil
}

func (g *Guarded) ExecutePayment(ctx context.Context, gatewayPaymentID, payerReference string) (*Outcome, error) {
	v, err := g.call(ctx, "payment.execute", func(ctx context.Context) (any, error) {
		return g.next.ExecutePayment(ctx, gatewayPaymentID, payerReference)
	}, attribute.String("payment.id", gatewayPaymentID))
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

func (g *Guarded) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	v, err := g.call(ctx, "payment.webhook", func(ctx context.Context) (any, error) {
		return g.next.ParseWebhook(ctx, payload, header)
	})
	if err != nil {
		return nil, err
	}
	return v.(*WebhookEvent), nil
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

// BreakerStates returns the breaker state of every Guarded gateway keyed by
// gateway name. Unguarded gateways are left out.
func BreakerStates(gateways ...Gateway) map[string]string {
	states := make(map[string]string)
	for _, gw := range gateways {
		if g, ok := gw.(*Guarded); ok {
			states[g.Name()] = g.State().String()
		}
	}
	return states
}

func (g *Guarded) call(ctx context.Context, op string, fn func(context.Context) (any, error), attrs ...attribute.KeyValue) (any, error) {
	ctx, span := tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(append(attrs, attribute.String("payment.gateway", g.next.Name()))...)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	v, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == nil {
		return v, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s unavailable: %v", domain.ErrPaymentGateway, g.next.Name(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s timed out after %s", domain.ErrPaymentGateway, g.next.Name(), g.timeout)
	}
	return nil, err
}
