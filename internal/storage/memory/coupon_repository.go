package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// couponRepository — view общего Store как репозитория купонов.
// Коды хранятся в верхнем регистре, поиск нечувствителен к регистру.
type couponRepository struct {
	store *Store
}

// Create сохраняет купон; занятый код — ErrCouponAlreadyExists.
func (r *couponRepository) Create(_ context.Context, coupon domain.Coupon) error {
	code := domain.NormalizeCouponCode(coupon.Code)
	if code == "" {
		return domain.ErrCouponCodeRequired
	}
	coupon.Code = code

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.coupons[code]; exists {
		return domain.ErrCouponAlreadyExists
	}
	r.store.coupons[code] = coupon
	return nil
}

// GetByCode ищет купон без учёта регистра; отсутствие — ErrCouponNotFound.
func (r *couponRepository) GetByCode(_ context.Context, code string) (domain.Coupon, error) {
	normalized := domain.NormalizeCouponCode(code)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	coupon, ok := r.store.coupons[normalized]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// List возвращает купоны в порядке кодов, ограничивая выборку limit (если >0).
func (r *couponRepository) List(_ context.Context, limit int) ([]domain.Coupon, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Coupon, 0, len(r.store.coupons))
	for _, coupon := range r.store.coupons {
		result = append(result, coupon)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
