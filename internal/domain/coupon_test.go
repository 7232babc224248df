package domain

import (
	"testing"
	"time"
)

func TestCouponApplicable(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		coupon Coupon
		want   bool
	}{
		{name: "active without expiry", coupon: Coupon{Active: true}, want: true},
		{name: "active with future expiry", coupon: Coupon{Active: true, ExpiresAt: &future}, want: true},
		{name: "expired", coupon: Coupon{Active: true, ExpiresAt: &past}, want: false},
		{name: "inactive", coupon: Coupon{Active: false}, want: false},
		{name: "inactive with future expiry", coupon: Coupon{Active: false, ExpiresAt: &future}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.coupon.Applicable(now); got != tc.want {
				t.Fatalf("applicable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeCouponCode(t *testing.T) {
	if got := NormalizeCouponCode("  verano10 "); got != "VERANO10" {
		t.Fatalf("normalize = %q", got)
	}
}

func TestCouponValidate(t *testing.T) {
	good := Coupon{Code: "SAVE15", DiscountType: DiscountTypeFixed, DiscountValue: 1500, Active: true}
	if errs := good.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid coupon, got %v", errs)
	}

	tooBig := Coupon{Code: "PCT", DiscountType: DiscountTypePercentage, DiscountValue: 150}
	if errs := tooBig.Validate(); len(errs) != 1 {
		t.Fatalf("expected percentage over 100 to be rejected, got %v", errs)
	}

	bad := Coupon{Code: " ", DiscountType: DiscountType("bogus"), DiscountValue: 0}
	if errs := bad.Validate(); len(errs) != 3 {
		t.Fatalf("expected 3 violations, got %v", errs)
	}
}
