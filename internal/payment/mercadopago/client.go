// Package mercadopago реализует domain.PaymentGateway поверх REST API Mercado Pago.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// DefaultBaseURL — боевой адрес API Mercado Pago.
	DefaultBaseURL = "https://api.mercadopago.com"

	defaultTimeout = 10 * time.Second

	// currencyID фиксирован: каталог хранит цены в одной валюте.
	currencyID = "BRL"
)

// Client — HTTP-клиент Mercado Pago, реализующий domain.PaymentGateway.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *log.Entry
}

// NewClient создаёт клиент с боевым базовым адресом.
func NewClient(accessToken string, logger *log.Entry) *Client {
	return NewClientWithBaseURL(accessToken, DefaultBaseURL, logger)
}

// NewClientWithBaseURL создаёт клиент с произвольным базовым адресом
// (sandbox или httptest-сервер в тестах).
func NewClientWithBaseURL(accessToken, baseURL string, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "mercadopago")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logger,
	}
}

// preferenceItem — позиция заказа в формате API предпочтений.
type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int32   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceBackURLs struct {
	Success string `json:"success,omitempty"`
	Pending string `json:"pending,omitempty"`
	Failure string `json:"failure,omitempty"`
}

type preferenceRequest struct {
	Items             []preferenceItem   `json:"items"`
	ExternalReference string             `json:"external_reference"`
	BackURLs          preferenceBackURLs `json:"back_urls"`
	NotificationURL   string             `json:"notification_url,omitempty"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
}

// CreatePaymentRequest создаёт preference со всеми позициями заказа.
// ID заказа уходит провайдеру как external_reference и X-Idempotency-Key:
// повторный вызов по тому же заказу не создаёт второй платёж.
func (c *Client) CreatePaymentRequest(ctx context.Context, order domain.Order, backURLs domain.BackURLs) (domain.PaymentRequest, error) {
	items := make([]preferenceItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, preferenceItem{
			ID:         item.ProductID,
			Title:      item.Name,
			Quantity:   item.Qty,
			UnitPrice:  minorToMajor(item.UnitPriceMinor),
			CurrencyID: currencyID,
		})
	}
	if order.DiscountMinor > 0 {
		// API не принимает отрицательные позиции, поэтому заказ со скидкой
		// сворачивается в одну итоговую позицию на TotalMinor.
		items = []preferenceItem{{
			ID:         order.ID,
			Title:      fmt.Sprintf("Order %s", order.ID),
			Quantity:   1,
			UnitPrice:  minorToMajor(order.TotalMinor),
			CurrencyID: currencyID,
		}}
	}

	body, err := json.Marshal(preferenceRequest{
		Items:             items,
		ExternalReference: order.ID,
		BackURLs: preferenceBackURLs{
			Success: backURLs.Success,
			Pending: backURLs.Pending,
			Failure: backURLs.Failure,
		},
	})
	if err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("marshal preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("build preference request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", order.ID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("create preference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return domain.PaymentRequest{}, c.apiError("create preference", resp)
	}

	var pref preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pref); err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("decode preference response: %w", err)
	}
	if pref.ID == "" || pref.InitPoint == "" {
		return domain.PaymentRequest{}, fmt.Errorf("incomplete preference response: id=%q init_point=%q", pref.ID, pref.InitPoint)
	}

	c.logger.WithFields(log.Fields{
		"order_id":      order.ID,
		"preference_id": pref.ID,
	}).Info("payment preference created")

	return domain.PaymentRequest{ID: pref.ID, RedirectURL: pref.InitPoint}, nil
}

// PaymentByID возвращает платёж по идентификатору из webhook-уведомления.
// Статус и external_reference читаются из ответа API, а не из тела webhook:
// уведомление несёт только ID, сами данные всегда перечитываются.
func (c *Client) PaymentByID(ctx context.Context, providerPaymentID string) (domain.PaymentNotification, error) {
	if providerPaymentID == "" {
		return domain.PaymentNotification{}, fmt.Errorf("payment id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+providerPaymentID, nil)
	if err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("get payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PaymentNotification{}, c.apiError("get payment", resp)
	}

	var payment paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("decode payment response: %w", err)
	}

	return domain.PaymentNotification{
		ProviderPaymentID: payment.ID.String(),
		ExternalReference: payment.ExternalReference,
		Status:            payment.Status,
	}, nil
}

// apiError читает тело ошибочного ответа (усечённо) для диагностики.
func (c *Client) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.logger.WithFields(log.Fields{
		"op":     op,
		"status": resp.StatusCode,
	}).Warn("mercadopago api error")
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}

func minorToMajor(minor int64) float64 {
	return float64(minor) / 100
}

var _ domain.PaymentGateway = (*Client)(nil)
