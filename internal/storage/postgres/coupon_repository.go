package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon.Code = domain.NormalizeCouponCode(coupon.Code)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (
			code, discount_type, discount_value, expires_at, active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		coupon.Code, string(coupon.DiscountType), coupon.DiscountValue,
		coupon.ExpiresAt, coupon.Active, coupon.CreatedAt, coupon.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCouponAlreadyExists
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	return nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		coupon       domain.Coupon
		discountType string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT code, discount_type, discount_value, expires_at, active, created_at, updated_at
		FROM coupons
		WHERE code = $1
	`, domain.NormalizeCouponCode(code)).Scan(
		&coupon.Code, &discountType, &coupon.DiscountValue,
		&coupon.ExpiresAt, &coupon.Active, &coupon.CreatedAt, &coupon.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	coupon.DiscountType = domain.DiscountType(discountType)

	return coupon, nil
}

func (r *couponRepository) List(ctx context.Context, limit int) ([]domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT code, discount_type, discount_value, expires_at, active, created_at, updated_at
		FROM coupons
		ORDER BY created_at DESC, code
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0)
	for rows.Next() {
		var (
			coupon       domain.Coupon
			discountType string
		)
		if err := rows.Scan(
			&coupon.Code, &discountType, &coupon.DiscountValue,
			&coupon.ExpiresAt, &coupon.Active, &coupon.CreatedAt, &coupon.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan coupon row: %w", err)
		}
		coupon.DiscountType = domain.DiscountType(discountType)
		coupons = append(coupons, coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupon rows: %w", err)
	}

	return coupons, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
