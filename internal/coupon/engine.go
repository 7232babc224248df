// Package coupon реализует разрешение и расчёт скидочных купонов.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Engine разрешает коды купонов и считает размер скидки.
type Engine struct {
	coupons domain.CouponRepository
	now     func() time.Time
}

// NewEngine создаёт движок купонов поверх репозитория.
func NewEngine(coupons domain.CouponRepository) *Engine {
	return &Engine{
		coupons: coupons,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve ищет применимый купон по коду без учёта регистра.
// Отсутствующий, неактивный и истёкший купоны одинаково возвращают
// ErrCouponNotFound: наружу не должно утекать, существовал ли код вообще.
func (e *Engine) Resolve(ctx context.Context, code string) (domain.Coupon, error) {
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}

	c, err := e.coupons.GetByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("resolve coupon: %w", err)
	}

	if !c.Applicable(e.now()) {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}

	return c, nil
}

// ComputeDiscount считает скидку по купону от subtotal. Чистая функция:
// percentage — целочисленная доля subtotal, fixed — не больше subtotal,
// итог никогда не уводит total в минус.
func ComputeDiscount(c domain.Coupon, subtotalMinor int64) int64 {
	if subtotalMinor <= 0 || c.DiscountValue <= 0 {
		return 0
	}

	switch c.DiscountType {
	case domain.DiscountTypePercentage:
		pct := c.DiscountValue
		if pct > 100 {
			pct = 100
		}
		return subtotalMinor * pct / 100
	case domain.DiscountTypeFixed:
		if c.DiscountValue > subtotalMinor {
			return subtotalMinor
		}
		return c.DiscountValue
	default:
		return 0
	}
}
