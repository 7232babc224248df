package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в витрине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и сток зарезервирован, ждём оплату.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusInProcess — провайдер ещё обрабатывает платёж.
	OrderStatusInProcess OrderStatus = "in_process"
	// OrderStatusPaid — оплата подтверждена провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusPaymentFailed — провайдер отклонил платёж, резерв возвращён на склад.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	// OrderStatusCancelled — заказ отменён до оплаты, резерв возвращён на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — деньги возвращены клиенту.
	OrderStatusRefunded OrderStatus = "refunded"
)

// HoldsStock сообщает, удерживает ли заказ в этом статусе складской резерв.
// Переход из holding-статуса в released-статус обязан сопровождаться restock,
// и ровно один раз — на этом построена идемпотентность reconcile.
func (s OrderStatus) HoldsStock() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProcess, OrderStatusPaid:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода статусов.
// Терминальные статусы: paid покидается только в refunded, refunded — никогда.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case OrderStatusPending, OrderStatusInProcess:
		switch to {
		case OrderStatusInProcess, OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusCancelled:
			return true
		}
		return false
	case OrderStatusPaid:
		return to == OrderStatusRefunded
	case OrderStatusPaymentFailed, OrderStatusCancelled:
		// Провайдер может прислать refunded уже после отмены; сток при этом не трогаем.
		return to == OrderStatusRefunded
	case OrderStatusRefunded:
		return false
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — идентификатор товара в каталоге.
	ProductID string
	// Name — снапшот названия товара на момент оформления.
	Name string
	// Qty — количество единиц товара.
	Qty int32
	// UnitPriceMinor — действующая цена за единицу на момент оформления
	// (с учётом акции), в минимальных денежных единицах. Никогда не пересчитывается.
	UnitPriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	CustomerName  string
	CustomerEmail string

	ShippingAddress string
	ShippingCity    string
	ShippingZip     string
	Phone           string

	Items []OrderItem

	SubtotalMinor int64
	DiscountMinor int64
	TotalMinor    int64
	CouponCode    string

	Status    OrderStatus
	PaymentID string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerName == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.DiscountMinor < 0 || o.DiscountMinor > o.SubtotalMinor {
		errs = append(errs, ErrDiscountOutOfRange)
	}

	// Сверяем subtotal с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.UnitPriceMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if o.TotalMinor != o.SubtotalMinor-o.DiscountMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
