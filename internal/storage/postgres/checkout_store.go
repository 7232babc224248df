package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type checkoutStore struct {
	db *sql.DB
}

// NewCheckoutStore создаёт PostgreSQL-реализацию CheckoutStore.
// Резерв стока и запись заказа выполняются в одной транзакции.
func NewCheckoutStore(store *Store) domain.CheckoutStore {
	return &checkoutStore{db: store.DB()}
}

func (s *checkoutStore) CreatePending(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Условный декремент по каждой позиции: нехватка любой из них
	// откатывает транзакцию целиком, частичных резерваций не бывает.
	for _, item := range order.Items {
		if err = reserveExec(ctx, tx, item.ProductID, item.Qty); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_name, customer_email,
			shipping_address, shipping_city, shipping_zip, phone,
			subtotal_minor, discount_minor, total_minor, coupon_code,
			status, payment_id, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'',1,$13,$14)
	`,
		order.ID, order.CustomerName, order.CustomerEmail,
		order.ShippingAddress, order.ShippingCity, order.ShippingZip, order.Phone,
		order.SubtotalMinor, order.DiscountMinor, order.TotalMinor, order.CouponCode,
		string(domain.OrderStatusPending), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, name, qty, unit_price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, order.ID, item.ProductID, item.Name,
			item.Qty, item.UnitPriceMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (s *checkoutStore) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, paymentID string) (domain.StatusChange, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StatusChange{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var currentStr string
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&currentStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = domain.ErrOrderNotFound
			return domain.StatusChange{}, err
		}
		return domain.StatusChange{}, fmt.Errorf("lock order row: %w", err)
	}
	current := domain.OrderStatus(currentStr)

	change := domain.StatusChange{From: current, To: status}

	if current == status {
		// Повторная доставка уведомления: статус не трогаем, но paymentID
		// дописываем, если раньше его не было.
		if paymentID != "" {
			if _, err = tx.ExecContext(ctx, `
				UPDATE orders
				SET payment_id = $2, updated_at = NOW()
				WHERE id = $1 AND payment_id = ''
			`, orderID, paymentID); err != nil {
				return domain.StatusChange{}, fmt.Errorf("backfill payment id: %w", err)
			}
		}
		if err = tx.Commit(); err != nil {
			return domain.StatusChange{}, fmt.Errorf("commit status noop: %w", err)
		}
		return change, nil
	}

	if !current.CanTransitionTo(status) {
		err = fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
		return domain.StatusChange{}, err
	}

	// Переход holding -> released освобождает резерв по всем позициям
	// в той же транзакции, что и смена статуса. Так повторный reconcile
	// не может вернуть сток дважды.
	if current.HoldsStock() && !status.HoldsStock() {
		var items []domain.OrderItem
		items, err = loadOrderItems(ctx, tx, orderID)
		if err != nil {
			return domain.StatusChange{}, err
		}
		for _, item := range items {
			if err = restockExec(ctx, tx, item.ProductID, item.Qty); err != nil {
				return domain.StatusChange{}, err
			}
		}
		change.Restocked = true
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    payment_id = CASE WHEN $3 <> '' THEN $3 ELSE payment_id END,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, orderID, string(status), paymentID); err != nil {
		return domain.StatusChange{}, fmt.Errorf("update order status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.StatusChange{}, fmt.Errorf("commit status change: %w", err)
	}

	return change, nil
}

func (s *checkoutStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		order  domain.Order
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_email,
		       shipping_address, shipping_city, shipping_zip, phone,
		       subtotal_minor, discount_minor, total_minor, coupon_code,
		       status, payment_id, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerName, &order.CustomerEmail,
		&order.ShippingAddress, &order.ShippingCity, &order.ShippingZip, &order.Phone,
		&order.SubtotalMinor, &order.DiscountMinor, &order.TotalMinor, &order.CouponCode,
		&status, &order.PaymentID, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := loadOrderItems(ctx, s.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (s *checkoutStore) OrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := orderExists(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrOrderNotFound
	}

	return loadOrderItems(ctx, s.db, orderID)
}

func (s *checkoutStore) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_name, customer_email,
		       shipping_address, shipping_city, shipping_zip, phone,
		       subtotal_minor, discount_minor, total_minor, coupon_code,
		       status, payment_id, version, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order  domain.Order
			status string
		)
		if err := rows.Scan(
			&order.ID, &order.CustomerName, &order.CustomerEmail,
			&order.ShippingAddress, &order.ShippingCity, &order.ShippingZip, &order.Phone,
			&order.SubtotalMinor, &order.DiscountMinor, &order.TotalMinor, &order.CouponCode,
			&status, &order.PaymentID, &order.Version, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Status = domain.OrderStatus(status)

		items, err := loadOrderItems(ctx, s.db, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadOrderItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, name, qty, unit_price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.Name,
			&item.Qty, &item.UnitPriceMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func orderExists(ctx context.Context, q querier, orderID string) (bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CheckoutStore = (*checkoutStore)(nil)
