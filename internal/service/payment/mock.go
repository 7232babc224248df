// Package payment содержит заглушку платёжного шлюза для dev-режима и тестов.
package payment

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — конфигурируемая заглушка domain.PaymentGateway. Используется
// приложением, когда access token провайдера не задан: оформление проходит,
// «оплата» подтверждается вручную через webhook с нужным статусом.
type MockGateway struct {
	mu sync.Mutex

	CreateErr error
	LookupErr error
	// Status подставляется в уведомление PaymentByID; по умолчанию approved.
	Status string

	CreateCalls int
	LookupCalls int

	// references хранит external_reference по ID созданных сессий.
	references map[string]string
}

// NewMockGateway возвращает заглушку с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Status:     "approved",
		references: make(map[string]string),
	}
}

// CreatePaymentRequest возвращает детерминированную платёжную сессию по заказу.
func (m *MockGateway) CreatePaymentRequest(_ context.Context, order domain.Order, _ domain.BackURLs) (domain.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.PaymentRequest{}, m.CreateErr
	}

	id := "mock-pref-" + order.ID
	m.references[id] = order.ID
	return domain.PaymentRequest{
		ID:          id,
		RedirectURL: "https://payments.invalid/checkout/" + id,
	}, nil
}

// PaymentByID возвращает уведомление с настроенным статусом. Для сессий,
// созданных этой же заглушкой, external_reference восстанавливается из ID.
func (m *MockGateway) PaymentByID(_ context.Context, providerPaymentID string) (domain.PaymentNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LookupCalls++
	if m.LookupErr != nil {
		return domain.PaymentNotification{}, m.LookupErr
	}

	return domain.PaymentNotification{
		ProviderPaymentID: providerPaymentID,
		ExternalReference: m.references[providerPaymentID],
		Status:            m.Status,
	}, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
