package domain

import (
	"context"
	"time"
)

// PaymentRequest — результат создания платёжной сессии у провайдера.
type PaymentRequest struct {
	// ID платёжной сессии (preference) на стороне провайдера.
	ID string
	// RedirectURL — адрес, куда отправить покупателя для оплаты.
	RedirectURL string
}

// BackURLs задаёт адреса возврата покупателя после оплаты.
type BackURLs struct {
	Success string
	Pending string
	Failure string
}

// PaymentNotification — платёж провайдера, привязанный к заказу
// через external reference (= ID заказа).
type PaymentNotification struct {
	ProviderPaymentID string
	ExternalReference string
	Status            string
}

// PaymentGateway описывает границу с платёжным провайдером.
type PaymentGateway interface {
	// CreatePaymentRequest создаёт платёжную сессию по заказу; ID заказа
	// передаётся провайдеру как external reference и ключ идемпотентности.
	CreatePaymentRequest(ctx context.Context, order Order, backURLs BackURLs) (PaymentRequest, error)
	// PaymentByID возвращает платёж по идентификатору из webhook-уведомления.
	PaymentByID(ctx context.Context, providerPaymentID string) (PaymentNotification, error)
}

// OutboxMessage событие заказа, записанное рядом с транзакцией и ждущее
// публикации в брокер.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats срез состояния очереди неопубликованных событий.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository очередь событий "сначала записали, потом опубликовали".
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	MarkSent(id string) error
	MarkFailed(id string) error
	Stats() (OutboxStats, error)
}

// OutboxPublisher доставляет событие из outbox наружу. Доставка может
// повторяться, получатели обязаны переживать дубликаты.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// TimelineRepository append-only история жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранилище записей Idempotency-Key для HTTP API.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
