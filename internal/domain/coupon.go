package domain

import (
	"strings"
	"time"
)

// DiscountType определяет способ расчёта скидки купона.
type DiscountType string

const (
	// DiscountTypePercentage — скидка в процентах от subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed — фиксированная сумма, не больше subtotal.
	DiscountTypeFixed DiscountType = "fixed"
)

// Valid проверяет, что тип скидки относится к поддерживаемым значениям.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountTypePercentage, DiscountTypeFixed:
		return true
	default:
		return false
	}
}

// Coupon описывает скидочный купон. Код уникален без учёта регистра
// и хранится в верхнем регистре.
type Coupon struct {
	Code         string
	DiscountType DiscountType
	// DiscountValue — проценты для percentage, минимальные денежные единицы для fixed.
	DiscountValue int64
	ExpiresAt     *time.Time
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeCouponCode приводит код купона к каноническому виду.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Applicable сообщает, применим ли купон в момент now: активен и не истёк.
func (c *Coupon) Applicable(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Validate проверяет корректность полей купона.
func (c *Coupon) Validate() []error {
	var errs []error

	if NormalizeCouponCode(c.Code) == "" {
		errs = append(errs, ErrCouponCodeRequired)
	}
	if !c.DiscountType.Valid() {
		errs = append(errs, ErrCouponTypeInvalid)
	}
	if c.DiscountValue <= 0 {
		errs = append(errs, ErrCouponValueInvalid)
	}
	if c.DiscountType == DiscountTypePercentage && c.DiscountValue > 100 {
		errs = append(errs, ErrCouponValueInvalid)
	}

	return errs
}
