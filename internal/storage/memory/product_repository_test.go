package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestProductRepository_CRUD(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seedProduct(t, store, "p1", 10000, 5)

	if err := store.Products().Create(ctx, domain.Product{ID: "p1", Name: "dup", PriceMinor: 1, Stock: 1}); err == nil {
		t.Fatal("expected error on duplicate id")
	}

	product, err := store.Products().Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Update не трогает сток: он меняется только через Reserve/Restock.
	product.Name = "renamed"
	product.Stock = 999
	if err := store.Products().Update(ctx, product); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, _ := store.Products().Get(ctx, "p1")
	if updated.Name != "renamed" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.Stock != 5 {
		t.Fatalf("update must not change stock, got %d", updated.Stock)
	}

	if _, err := store.Products().Get(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepository_GetMany(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedProduct(t, store, "p1", 10000, 5)
	seedProduct(t, store, "p2", 5000, 5)

	products, err := store.Products().GetMany(ctx, []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	if _, err := store.Products().GetMany(ctx, []string{"p1", "ghost"}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepository_ListNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		err := store.Products().Create(ctx, domain.Product{
			ID:         id,
			Name:       id,
			PriceMinor: 100,
			Stock:      1,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	products, err := store.Products().List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 3 || products[0].ID != "new" || products[2].ID != "old" {
		t.Fatalf("unexpected order: %+v", products)
	}
}

func TestCouponRepository_CaseInsensitive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.Coupons().Create(ctx, domain.Coupon{
		Code:          "SALE10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Coupons().GetByCode(ctx, "sale10"); err != nil {
		t.Fatalf("lookup by lower-case code: %v", err)
	}

	err = store.Coupons().Create(ctx, domain.Coupon{Code: "sale10", DiscountType: domain.DiscountTypeFixed, DiscountValue: 1})
	if !errors.Is(err, domain.ErrCouponAlreadyExists) {
		t.Fatalf("expected ErrCouponAlreadyExists, got %v", err)
	}

	if _, err := store.Coupons().GetByCode(ctx, "NOPE"); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}
