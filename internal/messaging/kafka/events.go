package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Checkout события
	EventTypeCheckoutStarted   EventType = "checkout.started"
	EventTypeCheckoutCompleted EventType = "checkout.completed"
	EventTypeCheckoutRejected  EventType = "checkout.rejected"

	// Order события
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderPaymentFailed EventType = "order.payment_failed"
	EventTypeOrderCanceled      EventType = "order.canceled"
	EventTypeOrderRefunded      EventType = "order.refunded"

	// Inventory события
	EventTypeStockReserved EventType = "stock.reserved"
	EventTypeStockReleased EventType = "stock.released"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicStockEvents     = "storefront.stock.events"
	TopicDeadLetterQueue = "storefront.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType     EventType              `json:"event_type"`
	OrderID       string                 `json:"order_id"`
	CustomerEmail string                 `json:"customer_email"`
	Status        string                 `json:"status"`
	TotalMinor    int64                  `json:"total_minor"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// StockEvent представляет событие изменения остатка
type StockEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Qty       int32     `json:"qty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerEmail, status string, totalMinor int64, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:     eventType,
		OrderID:       orderID,
		CustomerEmail: customerEmail,
		Status:        status,
		TotalMinor:    totalMinor,
		Timestamp:     time.Now(),
		Metadata:      metadata,
	}
}

// NewStockEvent создает новое событие изменения остатка
func NewStockEvent(eventType EventType, orderID, productID string, qty int32) *StockEvent {
	return &StockEvent{
		EventType: eventType,
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		Timestamp: time.Now(),
	}
}
