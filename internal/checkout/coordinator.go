package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// CheckoutItem — строка корзины в запросе на оформление.
type CheckoutItem struct {
	ProductID string
	Qty       int32
}

// CheckoutRequest — валидированный запрос на оформление заказа.
type CheckoutRequest struct {
	CustomerName  string
	CustomerEmail string

	ShippingAddress string
	ShippingCity    string
	ShippingZip     string
	Phone           string

	CouponCode string
	Items      []CheckoutItem
}

// CheckoutResult — итог успешного оформления.
type CheckoutResult struct {
	Order domain.Order
	// CouponApplied = false, если код был указан, но купон не найден
	// или просрочен: заказ оформляется без скидки.
	CouponApplied bool
	// PaymentID и RedirectURL платёжной сессии провайдера.
	PaymentID   string
	RedirectURL string
}

// Coordinator управляет оформлением заказа и сверкой платёжных уведомлений.
type Coordinator interface {
	// PlaceOrder резервирует сток, создаёт pending-заказ и платёжную сессию.
	PlaceOrder(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
	// Reconcile применяет платёжное уведомление провайдера к заказу.
	Reconcile(ctx context.Context, notification domain.PaymentNotification) (domain.StatusChange, error)
	// CancelOrder отменяет неоплаченный заказ с возвратом резерва.
	CancelOrder(ctx context.Context, orderID, reason string) (domain.StatusChange, error)
}

// Options задаёт опциональные зависимости координатора.
type Options struct {
	Metrics       *metrics.CheckoutMetrics
	KafkaProducer *kafka.Producer
	BackURLs      domain.BackURLs
	Now           func() time.Time
	NewID         func() string
}

// Option настраивает Coordinator.
type Option func(*Options)

// WithMetrics задаёт метрики оформления (nil отключает их, для тестов).
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithKafkaProducer задаёт producer для прямой публикации событий в Kafka.
func WithKafkaProducer(producer *kafka.Producer) Option {
	return func(opts *Options) {
		opts.KafkaProducer = producer
	}
}

// WithBackURLs задаёт адреса возврата покупателя после оплаты.
func WithBackURLs(backURLs domain.BackURLs) Option {
	return func(opts *Options) {
		opts.BackURLs = backURLs
	}
}

// WithClock задаёт источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// WithIDGenerator задаёт генератор идентификаторов (для тестов).
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

type coordinator struct {
	store         domain.CheckoutStore
	products      domain.ProductRepository
	coupons       *coupon.Engine
	gateway       domain.PaymentGateway
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	kafkaProducer *kafka.Producer
	backURLs      domain.BackURLs
	now           func() time.Time
	newID         func() string
}

// NewCoordinator создаёт рабочий экземпляр координатора оформления.
func NewCoordinator(
	store domain.CheckoutStore,
	products domain.ProductRepository,
	coupons *coupon.Engine,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
	options ...Option,
) Coordinator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}

	opts := Options{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &coordinator{
		store:         store,
		products:      products,
		coupons:       coupons,
		gateway:       gateway,
		outbox:        outbox,
		timeline:      timeline,
		logger:        logger,
		metrics:       opts.Metrics,
		kafkaProducer: opts.KafkaProducer,
		backURLs:      opts.BackURLs,
		now:           opts.Now,
		newID:         opts.NewID,
	}
}

// PlaceOrder оформляет заказ: цены и скидки снапшотятся на момент вызова,
// резерв стока и вставка заказа выполняются как одна атомарная операция
// хранилища, платёжная сессия создаётся после фиксации заказа.
func (c *coordinator) PlaceOrder(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	start := c.now()
	if c.metrics != nil {
		c.metrics.RecordCheckoutStarted()
		defer func() {
			c.metrics.RecordCheckoutDuration(time.Since(start))
			c.metrics.RecordCheckoutInFlightFinished()
		}()
	}

	items, err := normalizeItems(req.Items)
	if err != nil {
		c.recordFailed()
		return CheckoutResult{}, err
	}
	if req.CustomerName == "" {
		c.recordFailed()
		return CheckoutResult{}, domain.ErrCustomerNameRequired
	}
	if req.CustomerEmail == "" {
		c.recordFailed()
		return CheckoutResult{}, domain.ErrCustomerEmailRequired
	}

	// Снапшот каталога: действующая цена за единицу фиксируется в позиции
	// заказа и больше никогда не пересчитывается.
	stepStart := c.now()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := c.products.GetMany(ctx, ids)
	if err != nil {
		c.recordFailed()
		return CheckoutResult{}, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	now := c.now()
	orderID := c.newID()
	orderItems := make([]domain.OrderItem, 0, len(items))
	var subtotal int64
	for _, item := range items {
		product := byID[item.ProductID]
		unitPrice := product.EffectivePriceMinor(now)
		orderItems = append(orderItems, domain.OrderItem{
			ID:             c.newID(),
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceMinor: unitPrice,
			CreatedAt:      now,
		})
		subtotal += int64(item.Qty) * unitPrice
	}
	c.recordStep("pricing", stepStart)

	// Купон разрешается мягко: несуществующий или просроченный код не
	// блокирует оформление, заказ просто идёт без скидки.
	var (
		discount      int64
		couponApplied bool
		couponCode    string
	)
	if req.CouponCode != "" {
		resolved, err := c.coupons.Resolve(ctx, req.CouponCode)
		switch {
		case err == nil:
			discount = coupon.ComputeDiscount(resolved, subtotal)
			couponApplied = true
			couponCode = resolved.Code
			if c.metrics != nil {
				c.metrics.RecordCouponApplied()
			}
		case errors.Is(err, domain.ErrCouponNotFound):
			c.logger.WithField("coupon_code", req.CouponCode).Debug("coupon not applicable, checkout continues without discount")
		default:
			c.recordFailed()
			return CheckoutResult{}, err
		}
	}

	order := domain.Order{
		ID:              orderID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingZip:     req.ShippingZip,
		Phone:           req.Phone,
		Items:           orderItems,
		SubtotalMinor:   subtotal,
		DiscountMinor:   discount,
		TotalMinor:      subtotal - discount,
		CouponCode:      couponCode,
		Status:          domain.OrderStatusPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		c.recordFailed()
		return CheckoutResult{}, errs[0]
	}

	stepStart = c.now()
	if err := c.store.CreatePending(ctx, order); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			if c.metrics != nil {
				c.metrics.RecordCheckoutOutOfStock()
			}
			c.logger.WithError(err).WithField("order_id", orderID).Info("checkout rejected: insufficient stock")
			return CheckoutResult{}, err
		}
		c.recordFailed()
		return CheckoutResult{}, err
	}
	c.recordStep("reserve", stepStart)

	c.emitEvent(&order, "OrderCreated", map[string]interface{}{
		"status":      string(order.Status),
		"total_minor": order.TotalMinor,
		"ts":          now.Format(time.RFC3339Nano),
	})
	c.publishOrderEvent(kafka.EventTypeOrderCreated, &order, map[string]interface{}{
		"coupon_code": couponCode,
	})

	// Платёжная сессия создаётся после фиксации заказа: если провайдер
	// недоступен, заказ остаётся pending и оплату можно перевыставить.
	stepStart = c.now()
	payment, err := c.gateway.CreatePaymentRequest(ctx, order, c.backURLs)
	if err != nil {
		c.recordFailed()
		c.logger.WithError(err).WithField("order_id", orderID).Error("create payment request failed")
		c.emitEvent(&order, "PaymentRequestFailed", map[string]interface{}{
			"reason": err.Error(),
			"ts":     c.now().Format(time.RFC3339Nano),
		})
		return CheckoutResult{Order: order, CouponApplied: couponApplied},
			fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	c.recordStep("payment_request", stepStart)

	if c.metrics != nil {
		c.metrics.RecordCheckoutCompleted()
	}
	c.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"total_minor": order.TotalMinor,
		"payment_id":  payment.ID,
	}).Info("checkout completed")

	return CheckoutResult{
		Order:         order,
		CouponApplied: couponApplied,
		PaymentID:     payment.ID,
		RedirectURL:   payment.RedirectURL,
	}, nil
}

// Reconcile переводит заказ в статус, соответствующий платёжному уведомлению.
// Метод идемпотентен: повторная доставка того же уведомления — no-op.
func (c *coordinator) Reconcile(ctx context.Context, notification domain.PaymentNotification) (domain.StatusChange, error) {
	status, ok := MapProviderStatus(notification.Status)
	if !ok {
		c.logger.WithFields(log.Fields{
			"order_id":        notification.ExternalReference,
			"provider_status": notification.Status,
		}).Warn("unknown provider payment status, notification ignored")
		return domain.StatusChange{}, nil
	}
	if status == "" {
		// Провайдер ещё обрабатывает платёж, статус заказа не меняется.
		return domain.StatusChange{}, nil
	}

	change, err := c.store.SetStatus(ctx, notification.ExternalReference, status, notification.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			c.logger.WithError(err).WithField("order_id", notification.ExternalReference).Warn("payment notification arrived for terminal order")
		}
		return domain.StatusChange{}, err
	}

	if c.metrics != nil {
		c.metrics.RecordReconcile(string(status))
		if change.Restocked {
			c.metrics.RecordRestock()
		}
	}

	if !change.Applied() {
		return change, nil
	}

	order, err := c.store.GetOrder(ctx, notification.ExternalReference)
	if err != nil {
		return change, err
	}

	c.emitEvent(&order, "OrderStatusChanged", map[string]interface{}{
		"status":     string(status),
		"payment_id": notification.ProviderPaymentID,
		"restocked":  change.Restocked,
		"ts":         c.now().Format(time.RFC3339Nano),
	})
	c.publishOrderEvent(orderEventForStatus(status), &order, map[string]interface{}{
		"payment_id": notification.ProviderPaymentID,
	})

	if change.Restocked {
		c.publishStockEvents(&order)
	}

	return change, nil
}

// CancelOrder отменяет заказ (до оплаты) с возвратом резерва на склад.
func (c *coordinator) CancelOrder(ctx context.Context, orderID, reason string) (domain.StatusChange, error) {
	change, err := c.store.SetStatus(ctx, orderID, domain.OrderStatusCancelled, "")
	if err != nil {
		return domain.StatusChange{}, err
	}

	if c.metrics != nil && change.Restocked {
		c.metrics.RecordRestock()
	}
	if !change.Applied() {
		return change, nil
	}

	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return change, err
	}

	payload := map[string]interface{}{
		"reason": reason,
		"ts":     c.now().Format(time.RFC3339Nano),
	}
	if reason == "" {
		delete(payload, "reason")
	}
	c.emitEvent(&order, "OrderCanceled", payload)
	c.publishOrderEvent(kafka.EventTypeOrderCanceled, &order, map[string]interface{}{
		"reason": reason,
	})
	if change.Restocked {
		c.publishStockEvents(&order)
	}

	return change, nil
}

// MapProviderStatus переводит статус платежа провайдера в статус заказа.
// Пустой статус означает "оставить как есть", ok=false — неизвестный статус.
func MapProviderStatus(providerStatus string) (domain.OrderStatus, bool) {
	switch providerStatus {
	case "approved":
		return domain.OrderStatusPaid, true
	case "rejected":
		return domain.OrderStatusPaymentFailed, true
	case "cancelled":
		return domain.OrderStatusCancelled, true
	case "refunded", "charged_back":
		return domain.OrderStatusRefunded, true
	case "pending":
		return "", true
	case "in_process", "in_mediation":
		return domain.OrderStatusInProcess, true
	default:
		return "", false
	}
}

func orderEventForStatus(status domain.OrderStatus) kafka.EventType {
	switch status {
	case domain.OrderStatusPaid:
		return kafka.EventTypeOrderPaid
	case domain.OrderStatusPaymentFailed:
		return kafka.EventTypeOrderPaymentFailed
	case domain.OrderStatusCancelled:
		return kafka.EventTypeOrderCanceled
	case domain.OrderStatusRefunded:
		return kafka.EventTypeOrderRefunded
	default:
		return kafka.EventTypeOrderCreated
	}
}

// normalizeItems валидирует корзину и сливает повторяющиеся строки одного товара.
func normalizeItems(items []CheckoutItem) ([]CheckoutItem, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	index := make(map[string]int, len(items))
	result := make([]CheckoutItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, domain.ErrItemsRequired
		}
		if item.Qty <= 0 {
			return nil, domain.ErrItemQtyInvalid
		}
		if pos, ok := index[item.ProductID]; ok {
			result[pos].Qty += item.Qty
			continue
		}
		index[item.ProductID] = len(result)
		result = append(result, item)
	}

	return result, nil
}

func (c *coordinator) recordFailed() {
	if c.metrics != nil {
		c.metrics.RecordCheckoutFailed()
	}
}

func (c *coordinator) recordStep(step string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordStepDuration(step, time.Since(start))
	}
}

// emitEvent пишет событие в transactional outbox и timeline заказа.
func (c *coordinator) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := c.outbox.Enqueue(msg); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if c.metrics != nil {
		c.metrics.RecordOutboxEvent()
	}

	if c.timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		var occurred time.Time
		if ts, ok := payload["ts"].(string); ok {
			if parsed, parseErr := time.Parse(time.RFC3339Nano, ts); parseErr == nil {
				occurred = parsed
			}
		}
		if occurred.IsZero() {
			occurred = c.now()
		}
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		}
		if err := c.timeline.Append(event); err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if c.metrics != nil {
			c.metrics.RecordTimelineEvent()
		}
	}
}

// publishOrderEvent публикует событие заказа в Kafka (если producer настроен).
func (c *coordinator) publishOrderEvent(eventType kafka.EventType, order *domain.Order, metadata map[string]interface{}) {
	if c.kafkaProducer == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerEmail, string(order.Status), order.TotalMinor, metadata)
	if err := c.kafkaProducer.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
		// Логируем ошибку, но не прерываем оформление: Kafka опциональная.
		c.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("failed to publish order event to kafka")
	}
}

// publishStockEvents публикует события возврата стока по позициям заказа.
func (c *coordinator) publishStockEvents(order *domain.Order) {
	if c.kafkaProducer == nil {
		return
	}

	for _, item := range order.Items {
		event := kafka.NewStockEvent(kafka.EventTypeStockReleased, order.ID, item.ProductID, item.Qty)
		if err := c.kafkaProducer.PublishEvent(kafka.TopicStockEvents, item.ProductID, event); err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": item.ProductID,
			}).Warn("failed to publish stock event to kafka")
		}
	}
}

var _ Coordinator = (*coordinator)(nil)
