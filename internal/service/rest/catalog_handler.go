package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductResponse — товар каталога с действующей ценой на момент запроса.
type ProductResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	PriceMinor          int64      `json:"price_minor"`
	EffectivePriceMinor int64      `json:"effective_price_minor"`
	Stock               int32      `json:"stock"`
	DiscountPercent     int32      `json:"discount_percent,omitempty"`
	OfferActive         bool       `json:"offer_active"`
	OfferStart          *time.Time `json:"offer_start,omitempty"`
	OfferEnd            *time.Time `json:"offer_end,omitempty"`
}

func toProductResponse(product domain.Product, now time.Time) ProductResponse {
	return ProductResponse{
		ID:                  product.ID,
		Name:                product.Name,
		Description:         product.Description,
		PriceMinor:          product.PriceMinor,
		EffectivePriceMinor: product.EffectivePriceMinor(now),
		Stock:               product.Stock,
		DiscountPercent:     product.DiscountPercent,
		OfferActive:         product.OfferActive(now),
		OfferStart:          product.OfferStart,
		OfferEnd:            product.OfferEnd,
	}
}

func (s *Server) handleListProducts(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = parsed
	}

	products, err := s.products.List(c.Request().Context(), limit)
	if err != nil {
		return s.writeError(c, err)
	}

	now := time.Now().UTC()
	result := make([]ProductResponse, 0, len(products))
	for _, product := range products {
		result = append(result, toProductResponse(product, now))
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetProduct(c echo.Context) error {
	product, err := s.products.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product, time.Now().UTC()))
}
