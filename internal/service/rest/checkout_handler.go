package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CheckoutItemRequest — строка корзины в теле запроса.
type CheckoutItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

// CheckoutRequest — тело POST /api/v1/checkout.
type CheckoutRequest struct {
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   string                `json:"customer_email"`
	ShippingAddress string                `json:"shipping_address"`
	ShippingCity    string                `json:"shipping_city"`
	ShippingZip     string                `json:"shipping_zip"`
	Phone           string                `json:"phone"`
	CouponCode      string                `json:"coupon_code"`
	Items           []CheckoutItemRequest `json:"items"`
}

// CheckoutResponse — успешный ответ оформления.
type CheckoutResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	SubtotalMinor int64  `json:"subtotal_minor"`
	DiscountMinor int64  `json:"discount_minor"`
	TotalMinor    int64  `json:"total_minor"`
	CouponApplied bool   `json:"coupon_applied"`
	PaymentID     string `json:"payment_id"`
	RedirectURL   string `json:"redirect_url"`
}

func (s *Server) handleCheckout(c echo.Context) error {
	// Тело читается вручную: оно нужно и для bind, и для хеша идемпотентности.
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
	}

	var req CheckoutRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	return s.withIdempotency(c, "POST /api/v1/checkout", payload, func() (int, interface{}) {
		return s.placeOrder(c, req)
	})
}

func (s *Server) placeOrder(c echo.Context, req CheckoutRequest) (int, interface{}) {
	items := make([]checkout.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.CheckoutItem{ProductID: item.ProductID, Qty: item.Qty})
	}

	result, err := s.coordinator.PlaceOrder(c.Request().Context(), checkout.CheckoutRequest{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingZip:     req.ShippingZip,
		Phone:           req.Phone,
		CouponCode:      req.CouponCode,
		Items:           items,
	})
	if err != nil {
		return s.checkoutError(err)
	}

	return http.StatusCreated, CheckoutResponse{
		OrderID:       result.Order.ID,
		Status:        string(result.Order.Status),
		SubtotalMinor: result.Order.SubtotalMinor,
		DiscountMinor: result.Order.DiscountMinor,
		TotalMinor:    result.Order.TotalMinor,
		CouponApplied: result.CouponApplied,
		PaymentID:     result.PaymentID,
		RedirectURL:   result.RedirectURL,
	}
}

// checkoutError — маппинг ошибок оформления в (status, body) для кеша идемпотентности.
func (s *Server) checkoutError(err error) (int, interface{}) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, ErrorResponse{
			Error:     "insufficient stock",
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
		}
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrCustomerNameRequired),
		errors.Is(err, domain.ErrCustomerEmailRequired):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrPaymentGateway):
		return http.StatusBadGateway, ErrorResponse{Error: "payment provider unavailable"}
	default:
		s.logger.WithError(err).Error("checkout failed")
		return http.StatusServiceUnavailable, ErrorResponse{Error: "service unavailable"}
	}
}

// paymentNotificationRequest — тело webhook-уведомления Mercado Pago.
type paymentNotificationRequest struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// handlePaymentNotification обрабатывает webhook провайдера. Провайдер
// передаёт только ID платежа, данные всегда перечитываются через API.
// Неизвестные заказы и повторные доставки подтверждаются 200, иначе
// провайдер будет доставлять уведомление бесконечно.
func (s *Server) handlePaymentNotification(c echo.Context) error {
	var req paymentNotificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	paymentID := req.Data.ID
	if paymentID == "" {
		paymentID = c.QueryParam("data.id")
	}
	notificationType := req.Type
	if notificationType == "" {
		notificationType = c.QueryParam("type")
	}

	if notificationType != "payment" || paymentID == "" {
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	notification, err := s.gateway.PaymentByID(ctx, paymentID)
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Error("failed to fetch payment from provider")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment provider unavailable"})
	}
	if notification.ExternalReference == "" {
		s.logger.WithField("payment_id", paymentID).Warn("payment without external reference ignored")
		return c.NoContent(http.StatusOK)
	}

	change, err := s.coordinator.Reconcile(ctx, notification)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOrderNotFound):
		s.logger.WithFields(log.Fields{
			"payment_id": paymentID,
			"order_id":   notification.ExternalReference,
		}).Warn("payment notification for unknown order ignored")
		return c.NoContent(http.StatusOK)
	case errors.Is(err, domain.ErrInvalidTransition):
		// Уведомление пришло не в том порядке: заказ уже в терминальном
		// статусе. Подтверждаем, чтобы провайдер прекратил доставку.
		return c.NoContent(http.StatusOK)
	default:
		s.logger.WithError(err).WithField("order_id", notification.ExternalReference).Error("failed to reconcile payment")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process notification"})
	}

	s.logger.WithFields(log.Fields{
		"order_id":  notification.ExternalReference,
		"status":    notification.Status,
		"applied":   change.Applied(),
		"restocked": change.Restocked,
	}).Info("payment notification processed")

	return c.NoContent(http.StatusOK)
}
