package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type testEnv struct {
	server  *Server
	store   *memory.Store
	gateway *payment.MockGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	gateway := payment.NewMockGateway()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	idemRepo := memory.NewIdempotencyRepository()

	coordinator := checkout.NewCoordinator(
		store,
		store.Products(),
		coupon.NewEngine(store.Coupons()),
		gateway,
		outbox,
		timeline,
		nil,
	)

	server := NewServer(coordinator, store, store.Products(), store.Coupons(), timeline, idemRepo, gateway, nil)
	return &testEnv{server: server, store: store, gateway: gateway}
}

func (env *testEnv) seedProduct(t *testing.T, id string, priceMinor int64, stock int32) {
	t.Helper()
	err := env.store.Products().Create(context.Background(), domain.Product{
		ID:         id,
		Name:       "Product " + id,
		PriceMinor: priceMinor,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func checkoutBody(items ...CheckoutItemRequest) CheckoutRequest {
	return CheckoutRequest{
		CustomerName:    "Ivan Petrov",
		CustomerEmail:   "ivan@example.com",
		ShippingAddress: "Lenina 1",
		ShippingCity:    "Moscow",
		ShippingZip:     "101000",
		Items:           items,
	}
}

func TestCheckout_Success(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 5)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 2}), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[CheckoutResponse](t, rec)
	if resp.OrderID == "" || resp.Status != "pending" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.TotalMinor != 20000 {
		t.Fatalf("expected total 20000, got %d", resp.TotalMinor)
	}
	if resp.RedirectURL == "" || resp.PaymentID == "" {
		t.Fatalf("expected payment session in response, got %+v", resp)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckout_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 5}), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[ErrorResponse](t, rec)
	if resp.ProductID != "p1" || resp.Requested != 5 {
		t.Fatalf("expected structured stock error, got %+v", resp)
	}
}

func TestCheckout_IdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 5)

	body := checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 1})
	headers := map[string]string{"Idempotency-Key": "key-1"}

	first := env.do(t, http.MethodPost, "/api/v1/checkout", body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	firstResp := decode[CheckoutResponse](t, first)

	second := env.do(t, http.MethodPost, "/api/v1/checkout", body, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	secondResp := decode[CheckoutResponse](t, second)
	if secondResp.OrderID != firstResp.OrderID {
		t.Fatalf("expected replayed order %s, got %s", firstResp.OrderID, secondResp.OrderID)
	}

	// Повтор не создаёт второй заказ и не трогает сток.
	orders, err := env.store.ListOrders(context.Background(), 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected single order, got %d", len(orders))
	}
	product, err := env.store.Products().Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 4 {
		t.Fatalf("expected stock 4 after replay, got %d", product.Stock)
	}
}

func TestCheckout_IdempotencyHashMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 5)

	headers := map[string]string{"Idempotency-Key": "key-2"}
	first := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 1}), headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	second := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 2}), headers)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key with different body, got %d", second.Code)
	}
}

func TestCheckout_IdempotencyFailureReplay(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 1)

	body := checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 5})
	headers := map[string]string{"Idempotency-Key": "key-3"}

	first := env.do(t, http.MethodPost, "/api/v1/checkout", body, headers)
	if first.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", first.Code)
	}

	second := env.do(t, http.MethodPost, "/api/v1/checkout", body, headers)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected replayed 409, got %d", second.Code)
	}
	resp := decode[ErrorResponse](t, second)
	if resp.ProductID != "p1" {
		t.Fatalf("expected cached stock error, got %+v", resp)
	}
}

func TestPaymentNotification_ApprovedMarksOrderPaid(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 5)

	created := decode[CheckoutResponse](t, env.do(t, http.MethodPost, "/api/v1/checkout",
		checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 1}), nil))

	notification := map[string]interface{}{
		"type": "payment",
		"data": map[string]string{"id": created.PaymentID},
	}
	rec := env.do(t, http.MethodPost, "/api/v1/payments/notifications", notification, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	order, err := env.store.GetOrder(context.Background(), created.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", order.Status)
	}
}

func TestPaymentNotification_UnknownOrderAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	env.gateway.Status = "approved"
	notification := map[string]interface{}{
		"type": "payment",
		"data": map[string]string{"id": "ghost-payment"},
	}
	rec := env.do(t, http.MethodPost, "/api/v1/payments/notifications", notification, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown order must be acknowledged with 200, got %d", rec.Code)
	}
}

func TestPaymentNotification_NonPaymentTypeIgnored(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/payments/notifications",
		map[string]interface{}{"type": "merchant_order"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProducts_EffectivePrice(t *testing.T) {
	env := newTestEnv(t)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	err := env.store.Products().Create(context.Background(), domain.Product{
		ID:              "sale",
		Name:            "On sale",
		PriceMinor:      10000,
		Stock:           3,
		DiscountPercent: 30,
		OfferStart:      &start,
		OfferEnd:        &end,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/products/sale", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[ProductResponse](t, rec)
	if resp.EffectivePriceMinor != 7000 || !resp.OfferActive {
		t.Fatalf("expected active offer at 7000, got %+v", resp)
	}

	list := env.do(t, http.MethodGet, "/api/v1/products", nil, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	products := decode[[]ProductResponse](t, list)
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestOrderTimeline(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 5)

	created := decode[CheckoutResponse](t, env.do(t, http.MethodPost, "/api/v1/checkout",
		checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 1}), nil))

	rec := env.do(t, http.MethodGet, "/api/v1/orders/"+created.OrderID+"/timeline", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	events := decode[[]TimelineEventResponse](t, rec)
	if len(events) != 1 || events[0].Type != "OrderCreated" {
		t.Fatalf("expected OrderCreated event, got %+v", events)
	}
}

func TestAdmin_ProductLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/admin/products", ProductUpsertRequest{
		Name:       "Widget",
		PriceMinor: 5000,
		Stock:      10,
	}, nil)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	product := decode[ProductResponse](t, created)

	updated := env.do(t, http.MethodPut, "/admin/products/"+product.ID, ProductUpsertRequest{
		Name:       "Widget v2",
		PriceMinor: 6000,
		Stock:      999, // игнорируется: сток через админку не меняется
	}, nil)
	if updated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", updated.Code, updated.Body.String())
	}
	after := decode[ProductResponse](t, updated)
	if after.PriceMinor != 6000 {
		t.Fatalf("expected updated price, got %+v", after)
	}
	if after.Stock != 10 {
		t.Fatalf("update must not touch stock, got %d", after.Stock)
	}

	invalid := env.do(t, http.MethodPost, "/admin/products", ProductUpsertRequest{Name: "", PriceMinor: 0}, nil)
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid product, got %d", invalid.Code)
	}
}

func TestAdmin_CouponCreate(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/admin/coupons", CouponCreateRequest{
		Code:          "save10",
		DiscountType:  "percentage",
		DiscountValue: 10,
		Active:        true,
	}, nil)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	resp := decode[CouponResponse](t, created)
	if resp.Code != "SAVE10" {
		t.Fatalf("expected normalized code SAVE10, got %q", resp.Code)
	}

	duplicate := env.do(t, http.MethodPost, "/admin/coupons", CouponCreateRequest{
		Code:          "SAVE10",
		DiscountType:  "percentage",
		DiscountValue: 15,
		Active:        true,
	}, nil)
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate code, got %d", duplicate.Code)
	}
}

func TestAdmin_CancelOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 5)

	created := decode[CheckoutResponse](t, env.do(t, http.MethodPost, "/api/v1/checkout",
		checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 2}), nil))

	rec := env.do(t, http.MethodPost, "/admin/orders/"+created.OrderID+"/cancel",
		CancelOrderRequest{Reason: "fraud check"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[CancelOrderResponse](t, rec)
	if resp.Status != "cancelled" || !resp.Restocked {
		t.Fatalf("expected restocking cancel, got %+v", resp)
	}

	product, err := env.store.Products().Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("expected stock restored, got %d", product.Stock)
	}
}

func TestAdmin_ListOrders(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 10000, 10)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/checkout",
			checkoutBody(CheckoutItemRequest{ProductID: "p1", Qty: 1}), nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("checkout %d: got %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/admin/orders?limit=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	orders := decode[[]OrderResponse](t, rec)
	if len(orders) != 2 {
		t.Fatalf("expected limit 2, got %d", len(orders))
	}
}
