package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CreatePending резервирует сток по каждой позиции и вставляет заказ в статусе
// pending под одним мьютексом: либо проходят все резервы и заказ создаётся,
// либо не меняется ничего.
func (s *Store) CreatePending(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}

	// Сначала проверяем все позиции: ни одного декремента до полной уверенности.
	for _, item := range order.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return domain.ErrProductNotFound
		}
		if item.Qty <= 0 {
			return domain.ErrItemQtyInvalid
		}
		if product.Stock < item.Qty {
			return &domain.InsufficientStockError{ProductID: item.ProductID, Requested: item.Qty}
		}
	}

	for _, item := range order.Items {
		if err := s.reserveLocked(item.ProductID, item.Qty); err != nil {
			// Недостижимо после проверки выше, но оставляем защиту инварианта.
			return err
		}
	}

	order.Status = domain.OrderStatusPending
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

// SetStatus переводит заказ в новый статус и, если переход освобождает резерв,
// возвращает сток по всем позициям — всё под одним мьютексом.
func (s *Store) SetStatus(_ context.Context, orderID string, status domain.OrderStatus, paymentID string) (domain.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.StatusChange{}, domain.ErrOrderNotFound
	}

	change := domain.StatusChange{From: order.Status, To: status}
	if order.Status == status {
		// Повторная доставка уведомления: освежаем только paymentID и метку времени.
		if paymentID != "" && order.PaymentID == "" {
			order.PaymentID = paymentID
		}
		order.UpdatedAt = time.Now().UTC()
		s.orders[orderID] = order
		return change, nil
	}

	if !order.Status.CanTransitionTo(status) {
		return domain.StatusChange{}, domain.ErrInvalidTransition
	}

	if order.Status.HoldsStock() && !status.HoldsStock() {
		for _, item := range order.Items {
			if err := s.restockLocked(item.ProductID, item.Qty); err != nil {
				return domain.StatusChange{}, err
			}
		}
		change.Restocked = true
	}

	order.Status = status
	if paymentID != "" {
		order.PaymentID = paymentID
	}
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = order

	return change, nil
}

// GetOrder возвращает заказ с позициями или ErrOrderNotFound.
func (s *Store) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// OrderItems возвращает позиции заказа.
func (s *Store) OrderItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	return items, nil
}

// ListOrders возвращает заказы, новые первыми, ограничивая выборку limit (если >0).
func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		result = append(result, cloneOrder(order))
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
