package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepository — view общего Store как репозитория каталога.
type productRepository struct {
	store *Store
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepository) Create(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.products[product.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.store.products[product.ID] = product
	return nil
}

// Update перезаписывает карточку товара, сохраняя авторитетный остаток:
// сток меняется только через Reserve/Restock.
func (r *productRepository) Update(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock = current.Stock
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	r.store.products[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// GetMany возвращает товары по списку ID; отсутствие любого — ErrProductNotFound.
func (r *productRepository) GetMany(_ context.Context, ids []string) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		product, ok := r.store.products[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		result = append(result, product)
	}
	return result, nil
}

// List возвращает каталог, новые товары первыми, ограничивая выборку limit (если >0).
func (r *productRepository) List(_ context.Context, limit int) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.store.products))
	for _, product := range r.store.products {
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Reserve атомарно уменьшает остаток, если его хватает.
func (r *productRepository) Reserve(_ context.Context, productID string, qty int32) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.reserveLocked(productID, qty)
}

// Restock возвращает qty единиц на склад.
func (r *productRepository) Restock(_ context.Context, productID string, qty int32) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.restockLocked(productID, qty)
}

// reserveLocked — check-and-decrement под уже взятым мьютексом Store.
func (s *Store) reserveLocked(productID string, qty int32) error {
	product, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	if product.Stock < qty {
		return &domain.InsufficientStockError{ProductID: productID, Requested: qty}
	}
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return nil
}

func (s *Store) restockLocked(productID string, qty int32) error {
	product, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	product.Stock += qty
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
