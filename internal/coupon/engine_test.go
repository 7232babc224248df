package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seedCoupon(t *testing.T, store *memory.Store, c domain.Coupon) {
	t.Helper()
	if err := store.Coupons().Create(context.Background(), c); err != nil {
		t.Fatalf("create coupon: %v", err)
	}
}

func TestEngineResolve_CaseInsensitive(t *testing.T) {
	store := memory.NewStore()
	seedCoupon(t, store, domain.Coupon{
		Code:          "VERANO10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		Active:        true,
	})

	engine := NewEngine(store.Coupons())

	for _, code := range []string{"VERANO10", "verano10", " Verano10 "} {
		c, err := engine.Resolve(context.Background(), code)
		if err != nil {
			t.Fatalf("resolve %q: %v", code, err)
		}
		if c.Code != "VERANO10" {
			t.Fatalf("resolved code %q", c.Code)
		}
	}
}

func TestEngineResolve_NotFoundIndistinguishable(t *testing.T) {
	store := memory.NewStore()
	past := time.Now().UTC().Add(-time.Hour)
	seedCoupon(t, store, domain.Coupon{
		Code:          "EXPIRED",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 500,
		Active:        true,
		ExpiresAt:     &past,
	})
	seedCoupon(t, store, domain.Coupon{
		Code:          "DISABLED",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 500,
		Active:        false,
	})

	engine := NewEngine(store.Coupons())

	// Несуществующий, истёкший и выключенный коды неразличимы для вызывающего.
	for _, code := range []string{"MISSING", "EXPIRED", "DISABLED", ""} {
		if _, err := engine.Resolve(context.Background(), code); !errors.Is(err, domain.ErrCouponNotFound) {
			t.Fatalf("resolve %q: expected ErrCouponNotFound, got %v", code, err)
		}
	}
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   domain.Coupon
		subtotal int64
		want     int64
	}{
		{
			name:     "percentage",
			coupon:   domain.Coupon{DiscountType: domain.DiscountTypePercentage, DiscountValue: 10},
			subtotal: 20000,
			want:     2000,
		},
		{
			name:     "percentage rounds down",
			coupon:   domain.Coupon{DiscountType: domain.DiscountTypePercentage, DiscountValue: 3},
			subtotal: 101,
			want:     3,
		},
		{
			name:     "fixed below subtotal",
			coupon:   domain.Coupon{DiscountType: domain.DiscountTypeFixed, DiscountValue: 1500},
			subtotal: 20000,
			want:     1500,
		},
		{
			name:     "fixed capped at subtotal",
			coupon:   domain.Coupon{DiscountType: domain.DiscountTypeFixed, DiscountValue: 99999},
			subtotal: 20000,
			want:     20000,
		},
		{
			name:     "zero subtotal",
			coupon:   domain.Coupon{DiscountType: domain.DiscountTypeFixed, DiscountValue: 100},
			subtotal: 0,
			want:     0,
		},
		{
			name:     "unknown type",
			coupon:   domain.Coupon{DiscountType: domain.DiscountType("bogus"), DiscountValue: 100},
			subtotal: 1000,
			want:     0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeDiscount(tc.coupon, tc.subtotal); got != tc.want {
				t.Fatalf("discount = %d, want %d", got, tc.want)
			}
		})
	}
}
