package domain

import "time"

// Product описывает товар каталога. Stock — авторитетный счётчик остатка,
// меняется только через Reserve/Restock хранилища.
type Product struct {
	ID          string
	Name        string
	Description string
	// PriceMinor — базовая цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// Stock — остаток на складе, никогда не уходит в минус.
	Stock int32
	// DiscountPercent задаёт акционную скидку, действующую в окне [OfferStart, OfferEnd].
	DiscountPercent int32
	OfferStart      *time.Time
	OfferEnd        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OfferActive сообщает, действует ли акционное окно в момент now.
func (p *Product) OfferActive(now time.Time) bool {
	if p.DiscountPercent <= 0 || p.OfferStart == nil || p.OfferEnd == nil {
		return false
	}
	return !now.Before(*p.OfferStart) && !now.After(*p.OfferEnd)
}

// EffectivePriceMinor возвращает действующую цену за единицу в момент now:
// акционную, если окно активно, иначе базовую.
func (p *Product) EffectivePriceMinor(now time.Time) int64 {
	if !p.OfferActive(now) {
		return p.PriceMinor
	}
	return p.PriceMinor - p.PriceMinor*int64(p.DiscountPercent)/100
}

// Validate проверяет корректность полей товара.
func (p *Product) Validate() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor <= 0 {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrProductStockNegative)
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		errs = append(errs, ErrProductDiscountInvalid)
	}
	if (p.OfferStart == nil) != (p.OfferEnd == nil) {
		errs = append(errs, ErrProductOfferWindowInvalid)
	}
	if p.OfferStart != nil && p.OfferEnd != nil && p.OfferEnd.Before(*p.OfferStart) {
		errs = append(errs, ErrProductOfferWindowInvalid)
	}

	return errs
}
