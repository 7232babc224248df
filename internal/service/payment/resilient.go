package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig конфигурация для retry логики обращений к платёжному шлюзу.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// CircuitBreaker простая реализация circuit breaker паттерна.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// ErrCircuitOpen возвращается, когда breaker блокирует обращения к шлюзу.
var ErrCircuitOpen = errors.New("payment gateway circuit breaker is open")

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "payment-circuit-breaker")
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}

		return err
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0

	return nil
}

// State возвращает текущее состояние breaker'а.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ResilientGateway оборачивает платёжный шлюз retry логикой и circuit breaker.
// Провайдер — внешняя система: сетевые сбои здесь штатны, и пара быстрых
// повторов спасает оформление заказа чаще, чем кажется.
type ResilientGateway struct {
	inner   domain.PaymentGateway
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  *log.Entry
}

// NewResilientGateway создаёт обёртку над шлюзом.
func NewResilientGateway(inner domain.PaymentGateway, retry RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientGateway {
	if logger == nil {
		logger = log.New().WithField("component", "resilient-gateway")
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}

	return &ResilientGateway{
		inner:   inner,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
	}
}

// CreatePaymentRequest создаёт платёжную сессию с повторами при сбоях.
func (g *ResilientGateway) CreatePaymentRequest(ctx context.Context, order domain.Order, backURLs domain.BackURLs) (domain.PaymentRequest, error) {
	var result domain.PaymentRequest
	err := g.executeWithRetry(ctx, "CreatePaymentRequest", order.ID, func() error {
		var innerErr error
		result, innerErr = g.inner.CreatePaymentRequest(ctx, order, backURLs)
		return innerErr
	})
	return result, err
}

// PaymentByID запрашивает платёж у провайдера с повторами при сбоях.
func (g *ResilientGateway) PaymentByID(ctx context.Context, paymentID string) (domain.PaymentNotification, error) {
	var result domain.PaymentNotification
	err := g.executeWithRetry(ctx, "PaymentByID", paymentID, func() error {
		var innerErr error
		result, innerErr = g.inner.PaymentByID(ctx, paymentID)
		return innerErr
	})
	return result, err
}

func (g *ResilientGateway) executeWithRetry(ctx context.Context, operation, subject string, fn func() error) error {
	call := fn
	if g.breaker != nil {
		call = func() error { return g.breaker.Execute(operation, fn) }
	}

	var lastErr error
	delay := g.retry.InitialDelay

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		err := call()
		if err == nil {
			if attempt > 1 {
				g.logger.WithFields(log.Fields{
					"operation": operation,
					"subject":   subject,
					"attempt":   attempt,
				}).Info("gateway call succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		if attempt < g.retry.MaxAttempts {
			g.logger.WithFields(log.Fields{
				"operation": operation,
				"subject":   subject,
				"attempt":   attempt,
				"delay":     delay,
				"error":     err,
			}).Warn("gateway call failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * g.retry.BackoffFactor)
			if delay > g.retry.MaxDelay {
				delay = g.retry.MaxDelay
			}
		}
	}

	return lastErr
}

// shouldRetry определяет, стоит ли повторять обращение при данной ошибке.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Открытый breaker означает, что провайдер уже лежит; повторы внутри
	// того же запроса только растянут латентность.
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return true
}

var _ domain.PaymentGateway = (*ResilientGateway)(nil)
