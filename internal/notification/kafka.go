package notification

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Publisher is satisfied by the kafka producer.
type Publisher interface {
	Publish(ctx context.Context, key string, event any, headers ...kafka.Header) error
}

// KafkaNotifier hands notifications to the notifier service through a
// topic, keyed by order id.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	if err := k.publisher.Publish(ctx, n.Order.ID, n, kafka.Header{Key: "kind", Value: []byte(n.Kind)}); err != nil {
		return fmt.Errorf("publish %s notification: %w", n.Kind, err)
	}
	return nil
}
