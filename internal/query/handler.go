package query

import (
	"context"
	"fmt"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"go.uber.org/zap"
)

var (
	ErrNotOrderOwner = fmt.Errorf("%w: order belongs to another user", domain.ErrUnauthorized)
	ErrAdminRequired = fmt.Errorf("%w: admin role required", domain.ErrUnauthorized)
)

type Handler struct {
	orders store.OrderStore
	logger *zap.Logger
}

func NewHandler(orders store.OrderStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orders: orders, logger: logger}
}

// GetOrder returns the order if the actor owns it or is an admin.
func (h *Handler) GetOrder(ctx context.Context, id string, actor domain.Actor) (*order.Order, error) {
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		h.logger.Warn("order access denied",
			zap.String("order_id", id),
			zap.String("user_id", actor.UserID),
		)
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

// ListMyOrders returns the actor's own orders, newest first.
func (h *Handler) ListMyOrders(ctx context.Context, actor domain.Actor) ([]*order.Order, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: missing user", domain.ErrUnauthorized)
	}
	orders, err := h.orders.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListAllOrders returns all orders (for admin use)
func (h *Handler) ListAllOrders(ctx context.Context, actor domain.Actor) ([]*order.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	orders, err := h.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return orders, nil
}
