package domain

import (
	"errors"
	"testing"
	"time"
)

func validOrder() Order {
	now := time.Now().UTC()
	return Order{
		ID:            "order-1",
		CustomerName:  "Ivan Petrov",
		CustomerEmail: "ivan@example.com",
		Items: []OrderItem{{
			ID:             "item-1",
			ProductID:      "product-1",
			Name:           "Mate cup",
			Qty:            2,
			UnitPriceMinor: 10000,
			CreatedAt:      now,
		}},
		SubtotalMinor: 20000,
		DiscountMinor: 1500,
		TotalMinor:    18500,
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderValidateInvariants_OK(t *testing.T) {
	order := validOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Order)
		want   error
	}{
		{name: "no customer name", mutate: func(o *Order) { o.CustomerName = "" }, want: ErrCustomerNameRequired},
		{name: "no email", mutate: func(o *Order) { o.CustomerEmail = "" }, want: ErrCustomerEmailRequired},
		{name: "no items", mutate: func(o *Order) { o.Items = nil }, want: ErrItemsRequired},
		{name: "zero qty", mutate: func(o *Order) { o.Items[0].Qty = 0 }, want: ErrItemQtyInvalid},
		{name: "negative price", mutate: func(o *Order) { o.Items[0].UnitPriceMinor = -1 }, want: ErrItemPriceInvalid},
		{name: "subtotal mismatch", mutate: func(o *Order) { o.SubtotalMinor = 999 }, want: ErrSubtotalMismatch},
		{name: "total mismatch", mutate: func(o *Order) { o.TotalMinor = 1 }, want: ErrTotalMismatch},
		{name: "discount above subtotal", mutate: func(o *Order) { o.DiscountMinor = o.SubtotalMinor + 1 }, want: ErrDiscountOutOfRange},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := validOrder()
			tc.mutate(&order)

			errs := order.ValidateInvariants()
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					return
				}
			}
			t.Fatalf("expected %v among %v", tc.want, errs)
		})
	}
}

func TestOrderStatusHoldsStock(t *testing.T) {
	holding := []OrderStatus{OrderStatusPending, OrderStatusInProcess, OrderStatusPaid}
	released := []OrderStatus{OrderStatusPaymentFailed, OrderStatusCancelled, OrderStatusRefunded}

	for _, s := range holding {
		if !s.HoldsStock() {
			t.Fatalf("status %s must hold stock", s)
		}
	}
	for _, s := range released {
		if s.HoldsStock() {
			t.Fatalf("status %s must not hold stock", s)
		}
	}
}

func TestOrderStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusInProcess, true},
		{OrderStatusPending, OrderStatusPaymentFailed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusInProcess, OrderStatusPaid, true},
		{OrderStatusInProcess, OrderStatusPending, false},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusPaid, OrderStatusPaymentFailed, false},
		{OrderStatusCancelled, OrderStatusRefunded, true},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
		{OrderStatusRefunded, OrderStatusCancelled, false},
		{OrderStatusPaid, OrderStatusPaid, true},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
