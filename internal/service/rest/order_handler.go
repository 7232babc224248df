package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderItemResponse — позиция заказа со снапшотом цены.
type OrderItemResponse struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// OrderResponse — заказ с позициями и итогами.
type OrderResponse struct {
	ID              string              `json:"id"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	ShippingAddress string              `json:"shipping_address,omitempty"`
	ShippingCity    string              `json:"shipping_city,omitempty"`
	ShippingZip     string              `json:"shipping_zip,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	SubtotalMinor   int64               `json:"subtotal_minor"`
	DiscountMinor   int64               `json:"discount_minor"`
	TotalMinor      int64               `json:"total_minor"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	Status          string              `json:"status"`
	PaymentID       string              `json:"payment_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TimelineEventResponse — событие жизненного цикла заказа.
type TimelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func toOrderResponse(order domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	return OrderResponse{
		ID:              order.ID,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		ShippingAddress: order.ShippingAddress,
		ShippingCity:    order.ShippingCity,
		ShippingZip:     order.ShippingZip,
		Phone:           order.Phone,
		Items:           items,
		SubtotalMinor:   order.SubtotalMinor,
		DiscountMinor:   order.DiscountMinor,
		TotalMinor:      order.TotalMinor,
		CouponCode:      order.CouponCode,
		Status:          string(order.Status),
		PaymentID:       order.PaymentID,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func (s *Server) handleGetOrder(c echo.Context) error {
	order, err := s.store.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) handleGetTimeline(c echo.Context) error {
	orderID := c.Param("id")
	// Timeline пустой и для несуществующего заказа: сначала проверяем наличие.
	if _, err := s.store.GetOrder(c.Request().Context(), orderID); err != nil {
		return s.writeError(c, err)
	}

	events, err := s.timeline.List(orderID)
	if err != nil {
		return s.writeError(c, err)
	}

	result := make([]TimelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, TimelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleListOrders(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = parsed
	}

	orders, err := s.store.ListOrders(c.Request().Context(), limit)
	if err != nil {
		return s.writeError(c, err)
	}

	result := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	return c.JSON(http.StatusOK, result)
}

// CancelOrderRequest — тело POST /admin/orders/:id/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrderResponse — итог отмены.
type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Restocked bool   `json:"restocked"`
}

func (s *Server) handleCancelOrder(c echo.Context) error {
	var req CancelOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	orderID := c.Param("id")
	change, err := s.coordinator.CancelOrder(c.Request().Context(), orderID, req.Reason)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, CancelOrderResponse{
		OrderID:   orderID,
		Status:    string(change.To),
		Restocked: change.Restocked,
	})
}
