package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего имени покупателя.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// Ошибка отсутствующего email покупателя.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка скидки вне диапазона [0, subtotal].
	ErrDiscountOutOfRange = errors.New("discount must be within [0, subtotal]")
	// Ошибка отсутствующего товара в позиции.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия subtotal и суммы позиций.
	ErrSubtotalMismatch = errors.New("order subtotal does not match items sum")
	// Ошибка несоответствия total формуле subtotal - discount.
	ErrTotalMismatch = errors.New("order total does not match subtotal minus discount")

	// Ошибки валидации товара.
	ErrProductNameRequired       = errors.New("product name is required")
	ErrProductPriceInvalid       = errors.New("product price must be greater than zero")
	ErrProductStockNegative      = errors.New("product stock must be non-negative")
	ErrProductDiscountInvalid    = errors.New("product discount percent must be within [0, 100]")
	ErrProductOfferWindowInvalid = errors.New("product offer window is invalid")

	// Ошибки валидации купона.
	ErrCouponCodeRequired = errors.New("coupon code is required")
	ErrCouponTypeInvalid  = errors.New("coupon discount type is invalid")
	ErrCouponValueInvalid = errors.New("coupon discount value is invalid")

	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock сигнализирует, что остатка не хватает на запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCouponNotFound возвращается для отсутствующего, неактивного или истёкшего купона —
	// три случая неразличимы для вызывающего.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponAlreadyExists возвращается при создании купона с занятым кодом.
	ErrCouponAlreadyExists = errors.New("coupon already exists")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition возвращается при запрещённом переходе статусов
	// (например, попытке покинуть терминальный статус).
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrPaymentGateway — ошибка при обращении к платёжному провайдеру.
	ErrPaymentGateway = errors.New("payment gateway error")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-контракта.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// InsufficientStockError уточняет, на каком товаре сорвалось резервирование.
type InsufficientStockError struct {
	ProductID string
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
