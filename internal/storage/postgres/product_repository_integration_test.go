package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestProductRepository_PostgresCRUD(t *testing.T) {
	store := testStore(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	seedIntegrationProduct(t, store, "p1", 15000, 7)

	product, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	product.Name = "renamed"
	product.Stock = 999
	product.UpdatedAt = time.Now().UTC().Round(time.Microsecond)
	if err := repo.Update(ctx, product); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.Stock != 7 {
		t.Fatalf("update must not change stock, got %d", updated.Stock)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := repo.Update(ctx, domain.Product{ID: "missing", Name: "x", PriceMinor: 1}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on update, got %v", err)
	}
}

func TestProductRepository_PostgresReserveRestock(t *testing.T) {
	store := testStore(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	seedIntegrationProduct(t, store, "p1", 10000, 2)

	if err := repo.Reserve(ctx, "p1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var insufficient *domain.InsufficientStockError
	err := repo.Reserve(ctx, "p1", 1)
	if !errors.As(err, &insufficient) || insufficient.ProductID != "p1" {
		t.Fatalf("expected typed insufficient-stock error, got %v", err)
	}

	if err := repo.Restock(ctx, "p1", 2); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if got := integrationStockOf(t, store, "p1"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}

	if err := repo.Reserve(ctx, "ghost", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := repo.Restock(ctx, "ghost", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on restock, got %v", err)
	}
}

func TestCouponRepository_Postgres(t *testing.T) {
	store := testStore(t)
	repo := NewCouponRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	err := repo.Create(ctx, domain.Coupon{
		Code:          "sale10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Код нормализуется к верхнему регистру и ищется без учёта регистра.
	coupon, err := repo.GetByCode(ctx, "SaLe10")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if coupon.Code != "SALE10" || coupon.DiscountType != domain.DiscountTypePercentage {
		t.Fatalf("unexpected coupon: %+v", coupon)
	}

	err = repo.Create(ctx, domain.Coupon{Code: "SALE10", DiscountType: domain.DiscountTypeFixed, DiscountValue: 500, CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, domain.ErrCouponAlreadyExists) {
		t.Fatalf("expected ErrCouponAlreadyExists, got %v", err)
	}

	if _, err := repo.GetByCode(ctx, "NOPE"); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}

	coupons, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(coupons) != 1 {
		t.Fatalf("expected 1 coupon, got %d", len(coupons))
	}
}
