// Package memory содержит in-memory реализацию хранилища для тестов
// и локальной разработки. Каталог, купоны и заказы живут под одним мьютексом,
// поэтому атомарная единица оформления (резерв + вставка заказа) выполняется
// неделимо по построению.
package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store — in-memory бэкенд витрины: каталог со стоком, купоны и заказы.
// Сток и заказы разделяют один мьютекс: CreatePending и SetStatus меняют
// и то и другое как единое целое.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	coupons  map[string]domain.Coupon
	orders   map[string]domain.Order
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		coupons:  make(map[string]domain.Coupon),
		orders:   make(map[string]domain.Order),
	}
}

// Products возвращает view хранилища как репозитория каталога.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{store: s}
}

// Coupons возвращает view хранилища как репозитория купонов.
func (s *Store) Coupons() domain.CouponRepository {
	return &couponRepository{store: s}
}

// Ping всегда успешен: хранилище живёт в памяти процесса.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = make([]domain.OrderItem, len(src.Items))
	copy(dst.Items, src.Items)
	return dst
}

var _ domain.CheckoutStore = (*Store)(nil)
