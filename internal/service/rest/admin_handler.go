package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductUpsertRequest — тело создания/обновления товара в админке.
type ProductUpsertRequest struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	PriceMinor      int64      `json:"price_minor"`
	Stock           int32      `json:"stock"`
	DiscountPercent int32      `json:"discount_percent"`
	OfferStart      *time.Time `json:"offer_start"`
	OfferEnd        *time.Time `json:"offer_end"`
}

func (s *Server) handleCreateProduct(c echo.Context) error {
	var req ProductUpsertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     req.Description,
		PriceMinor:      req.PriceMinor,
		Stock:           req.Stock,
		DiscountPercent: req.DiscountPercent,
		OfferStart:      req.OfferStart,
		OfferEnd:        req.OfferEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: errs[0].Error()})
	}

	if err := s.products.Create(c.Request().Context(), product); err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, toProductResponse(product, now))
}

// handleUpdateProduct перезаписывает карточку товара. Остаток не трогается:
// сток меняется только через оформление и возвраты.
func (s *Server) handleUpdateProduct(c echo.Context) error {
	var req ProductUpsertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	existing, err := s.products.Get(ctx, c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:              existing.ID,
		Name:            req.Name,
		Description:     req.Description,
		PriceMinor:      req.PriceMinor,
		Stock:           existing.Stock,
		DiscountPercent: req.DiscountPercent,
		OfferStart:      req.OfferStart,
		OfferEnd:        req.OfferEnd,
		CreatedAt:       existing.CreatedAt,
		UpdatedAt:       now,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: errs[0].Error()})
	}

	if err := s.products.Update(ctx, product); err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, toProductResponse(product, now))
}

// CouponCreateRequest — тело создания купона.
type CouponCreateRequest struct {
	Code          string     `json:"code"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Active        bool       `json:"active"`
}

// CouponResponse — купон в ответах API.
type CouponResponse struct {
	Code          string     `json:"code"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Active        bool       `json:"active"`
}

func (s *Server) handleCreateCoupon(c echo.Context) error {
	var req CouponCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	now := time.Now().UTC()
	coupon := domain.Coupon{
		Code:          domain.NormalizeCouponCode(req.Code),
		DiscountType:  domain.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		ExpiresAt:     req.ExpiresAt,
		Active:        req.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := coupon.Validate(); len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: errs[0].Error()})
	}

	if err := s.coupons.Create(c.Request().Context(), coupon); err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, CouponResponse{
		Code:          coupon.Code,
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
		ExpiresAt:     coupon.ExpiresAt,
		Active:        coupon.Active,
	})
}
