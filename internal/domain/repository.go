package domain

import "context"

// ProductRepository описывает требования к хранилищу каталога и стока.
type ProductRepository interface {
	// Create сохраняет новый товар.
	Create(ctx context.Context, product Product) error
	// Update перезаписывает карточку товара (цена, акция, описание). Остаток
	// меняется только через Reserve/Restock.
	Update(ctx context.Context, product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetMany возвращает товары по списку идентификаторов; отсутствие любого из
	// них — ErrProductNotFound.
	GetMany(ctx context.Context, ids []string) ([]Product, error)
	// List возвращает каталог, ограничивая выборку limit (если >0).
	List(ctx context.Context, limit int) ([]Product, error)
	// Reserve атомарно уменьшает остаток на qty, если остатка хватает.
	// Нехватка — *InsufficientStockError. Проверка и декремент — одна
	// неделимая операция хранилища, две конкурентные Reserve за последнюю
	// единицу никогда не проходят обе.
	Reserve(ctx context.Context, productID string, qty int32) error
	// Restock возвращает qty единиц на склад. Идемпотентность — забота вызывающего.
	Restock(ctx context.Context, productID string, qty int32) error
}

// CouponRepository описывает требования к хранилищу купонов.
type CouponRepository interface {
	// Create сохраняет купон; занятый код — ErrCouponAlreadyExists.
	Create(ctx context.Context, coupon Coupon) error
	// GetByCode ищет купон без учёта регистра; отсутствие — ErrCouponNotFound.
	GetByCode(ctx context.Context, code string) (Coupon, error)
	// List возвращает купоны, ограничивая выборку limit (если >0).
	List(ctx context.Context, limit int) ([]Coupon, error)
}

// StatusChange описывает применённый переход статуса заказа.
type StatusChange struct {
	From OrderStatus
	To   OrderStatus
	// Restocked = true, если в рамках этого перехода резерв вернулся на склад.
	Restocked bool
}

// Applied сообщает, изменился ли статус (false для повторной доставки уведомления).
func (c StatusChange) Applied() bool {
	return c.From != c.To
}

// CheckoutStore — единый контракт атомарных операций оформления заказа.
// Обе реализации (in-memory и postgres) обязаны выполнять каждую операцию
// как неделимую единицу: либо всё, либо ничего.
type CheckoutStore interface {
	// CreatePending в одной атомарной единице резервирует сток по каждой
	// позиции и вставляет заказ в статусе pending. Любая нехватка откатывает
	// всю единицу без частичных декрементов и возвращает *InsufficientStockError
	// с указанием товара.
	CreatePending(ctx context.Context, order Order) error
	// SetStatus в одной атомарной единице переводит заказ в новый статус,
	// проставляет paymentID (если непустой) и, когда переход переводит заказ
	// из стока-удерживающего статуса в сток-освобождающий, возвращает резерв
	// по всем позициям. Запрещённый переход — ErrInvalidTransition; повторный
	// вызов с тем же статусом — no-op с Applied()==false.
	SetStatus(ctx context.Context, orderID string, status OrderStatus, paymentID string) (StatusChange, error)
	// GetOrder возвращает заказ с позициями или ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (Order, error)
	// OrderItems возвращает позиции заказа (для расчёта restock и API).
	OrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	// ListOrders возвращает заказы, новые первыми, ограничивая выборку limit (если >0).
	ListOrders(ctx context.Context, limit int) ([]Order, error)
}
