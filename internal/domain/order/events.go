package order

// Event names a lifecycle change that customers are notified about.
type Event string

const (
	EventOrderPlaced      Event = "order_placed"
	EventPaymentConfirmed Event = "payment_confirmed"
	EventOrderShipped     Event = "order_shipped"
	EventOrderDelivered   Event = "order_delivered"
	EventOrderCancelled   Event = "order_cancelled"
)

// StatusEvent maps a fulfillment status to the event raised on entering it.
func StatusEvent(s Status) (Event, bool) {
	switch s {
	case StatusShipped:
		return EventOrderShipped, true
	case StatusDelivered:
		return EventOrderDelivered, true
	case StatusCancelled:
		return EventOrderCancelled, true
	}
	return "", false
}
