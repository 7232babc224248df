// Package rest реализует публичный HTTP API витрины поверх echo.
package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Server — HTTP-сервер витрины: checkout, webhook провайдера, каталог и админка.
type Server struct {
	echo        *echo.Echo
	coordinator checkout.Coordinator
	store       domain.CheckoutStore
	products    domain.ProductRepository
	coupons     domain.CouponRepository
	timeline    domain.TimelineRepository
	idemRepo    domain.IdempotencyRepository
	gateway     domain.PaymentGateway
	logger      *log.Entry
}

// NewServer собирает echo-приложение и регистрирует маршруты.
// idemRepo == nil отключает контракт Idempotency-Key (запросы выполняются напрямую).
func NewServer(
	coordinator checkout.Coordinator,
	store domain.CheckoutStore,
	products domain.ProductRepository,
	coupons domain.CouponRepository,
	timeline domain.TimelineRepository,
	idemRepo domain.IdempotencyRepository,
	gateway domain.PaymentGateway,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "rest")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		coordinator: coordinator,
		store:       store,
		products:    products,
		coupons:     coupons,
		timeline:    timeline,
		idemRepo:    idemRepo,
		gateway:     gateway,
		logger:      logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api/v1")
	api.POST("/checkout", s.handleCheckout)
	api.POST("/payments/notifications", s.handlePaymentNotification)
	api.GET("/products", s.handleListProducts)
	api.GET("/products/:id", s.handleGetProduct)
	api.GET("/orders/:id", s.handleGetOrder)
	api.GET("/orders/:id/timeline", s.handleGetTimeline)

	admin := s.echo.Group("/admin")
	admin.POST("/products", s.handleCreateProduct)
	admin.PUT("/products/:id", s.handleUpdateProduct)
	admin.POST("/coupons", s.handleCreateCoupon)
	admin.GET("/orders", s.handleListOrders)
	admin.POST("/orders/:id/cancel", s.handleCancelOrder)
}

// Start запускает сервер и блокируется до остановки.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler возвращает http.Handler (для тестов через httptest).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ErrorResponse — единый формат ошибок API.
type ErrorResponse struct {
	Error string `json:"error"`
	// ProductID заполняется для отказов по нехватке стока.
	ProductID string `json:"product_id,omitempty"`
	Requested int32  `json:"requested,omitempty"`
}

// writeError переводит доменные ошибки в HTTP-статусы.
func (s *Server) writeError(c echo.Context, err error) error {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "insufficient stock",
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
		})
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrCustomerNameRequired),
		errors.Is(err, domain.ErrCustomerEmailRequired):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCouponNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrCouponAlreadyExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOrderVersionConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPaymentGateway):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment provider unavailable"})
	default:
		s.logger.WithError(err).Error("unhandled api error")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service unavailable"})
	}
}
