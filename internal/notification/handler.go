package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Handler processes notification messages consumed from Kafka
type Handler struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{notifier: notifier, logger: logger}
}

// HandleMessage decodes a notification and delivers it.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	var n Notification
	if err := json.Unmarshal(value, &n); err != nil {
		h.logger.Error("failed to unmarshal notification", zap.ByteString("key", key), zap.Error(err))
		return err
	}
	if n.Order == nil {
		return fmt.Errorf("notification %s has no order", n.ID)
	}

	log := h.logger.With(
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("order_id", n.Order.ID),
	)

	if n.Recipient == "" {
		log.Warn("notification has no recipient, skipping")
		return nil
	}

	if err := h.notifier.Notify(ctx, n); err != nil {
		log.Error("failed to deliver notification", zap.String("recipient", n.Recipient), zap.Error(err))
		return err
	}

	log.Info("notification delivered", zap.String("recipient", n.Recipient))
	return nil
}
