package app

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/payment/mercadopago"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// Dependencies содержит собранные зависимости приложения.
type Dependencies struct {
	Storage       *storageSet
	Gateway       domain.PaymentGateway
	Coordinator   checkout.Coordinator
	Metrics       *metrics.CheckoutMetrics
	KafkaProducer *kafka.Producer
	Logger        *log.Entry
}

// NewDependencies собирает зависимости поверх инициализированного хранилища.
func NewDependencies(cfg Config, storage *storageSet, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	gateway := initPaymentGateway(cfg, logger)
	kafkaProducer := initKafkaProducer(cfg.KafkaBrokers, logger)
	checkoutMetrics := metrics.NewCheckoutMetrics()

	options := []checkout.Option{
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithBackURLs(cfg.BackURLs),
	}
	if kafkaProducer != nil {
		options = append(options, checkout.WithKafkaProducer(kafkaProducer))
	}

	coordinator := checkout.NewCoordinator(
		storage.checkout,
		storage.products,
		coupon.NewEngine(storage.coupons),
		gateway,
		storage.outbox,
		storage.timeline,
		logger.WithField("component", "checkout"),
		options...,
	)

	return &Dependencies{
		Storage:       storage,
		Gateway:       gateway,
		Coordinator:   coordinator,
		Metrics:       checkoutMetrics,
		KafkaProducer: kafkaProducer,
		Logger:        logger,
	}
}

// initPaymentGateway выбирает боевой или mock-шлюз по наличию access token.
// Боевой клиент оборачивается retry логикой и circuit breaker: провайдер —
// внешняя система, и его сбои не должны каскадом ронять оформление заказа.
func initPaymentGateway(cfg Config, logger *log.Entry) domain.PaymentGateway {
	if cfg.MPAccessToken == "" {
		logger.Warn("MP_ACCESS_TOKEN is not set, using mock payment gateway")
		return payment.NewMockGateway()
	}

	client := mercadopago.NewClientWithBaseURL(cfg.MPAccessToken, cfg.MPBaseURL, logger.WithField("component", "mercadopago"))
	breaker := payment.NewCircuitBreaker(5, 30*time.Second, logger.WithField("component", "payment-circuit-breaker"))
	return payment.NewResilientGateway(client, payment.DefaultRetryConfig(), breaker, logger.WithField("component", "resilient-gateway"))
}

// initKafkaProducer создаёт producer, если заданы брокеры.
// Ошибка подключения не фатальна: сервис работает без Kafka.
func initKafkaProducer(brokers string, logger *log.Entry) *kafka.Producer {
	if brokers == "" {
		return nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher — publisher для запуска без Kafka: события outbox пишутся в лог
// и помечаются отправленными, чтобы backlog не рос бесконечно.
type logPublisher struct {
	logger *log.Entry
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Debug("outbox event published to log")
	return nil
}

var _ domain.OutboxPublisher = (*logPublisher)(nil)
