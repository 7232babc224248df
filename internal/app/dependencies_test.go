package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

func TestNewDependencies(t *testing.T) {
	cfg := DefaultConfig()
	storage := newMemoryStorage(t)
	logger := log.WithField("test", "dependencies")

	deps := NewDependencies(cfg, storage, logger)

	if deps == nil {
		t.Fatal("NewDependencies should not return nil")
	}

	if deps.Storage == nil {
		t.Error("Storage should not be nil")
	}

	if deps.Gateway == nil {
		t.Error("Gateway should not be nil")
	}

	if deps.Coordinator == nil {
		t.Error("Coordinator should not be nil")
	}

	if deps.Metrics == nil {
		t.Error("Metrics should not be nil")
	}

	if deps.Logger == nil {
		t.Error("Logger should not be nil")
	}
}

func TestNewDependencies_MockGatewayWithoutToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MPAccessToken = ""
	storage := newMemoryStorage(t)

	deps := NewDependencies(cfg, storage, log.WithField("test", "gateway"))

	if _, ok := deps.Gateway.(*payment.MockGateway); !ok {
		t.Errorf("expected mock gateway without access token, got %T", deps.Gateway)
	}
}

func TestNewDependencies_MercadoPagoGatewayWithToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MPAccessToken = "TEST-token"
	storage := newMemoryStorage(t)

	deps := NewDependencies(cfg, storage, log.WithField("test", "gateway"))

	if _, ok := deps.Gateway.(*payment.ResilientGateway); !ok {
		t.Errorf("expected resilient gateway with access token, got %T", deps.Gateway)
	}
}

func TestNewDependencies_NoKafkaWithoutBrokers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = ""
	storage := newMemoryStorage(t)

	deps := NewDependencies(cfg, storage, log.WithField("test", "kafka"))

	if deps.KafkaProducer != nil {
		t.Error("expected nil KafkaProducer without brokers")
	}
}

func TestNewDependencies_CoordinatorPlacesOrders(t *testing.T) {
	cfg := DefaultConfig()
	storage := newMemoryStorage(t)
	ctx := context.Background()

	if err := storage.products.Create(ctx, newTestProduct("p1", 5000, 10)); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}

	deps := NewDependencies(cfg, storage, log.WithField("test", "coordinator"))

	result, err := deps.Coordinator.PlaceOrder(ctx, checkout.CheckoutRequest{
		CustomerName:  "Ivan Petrov",
		CustomerEmail: "ivan@example.com",
		Items:         []checkout.CheckoutItem{{ProductID: "p1", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if result.Order.TotalMinor != 10000 {
		t.Errorf("expected total 10000, got %d", result.Order.TotalMinor)
	}

	product, err := storage.products.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to get product: %v", err)
	}
	if product.Stock != 8 {
		t.Errorf("expected stock 8 after reservation, got %d", product.Stock)
	}
}

func TestNewDependencies_IndependentInstances(t *testing.T) {
	cfg := DefaultConfig()

	deps1 := NewDependencies(cfg, newMemoryStorage(t), log.WithField("test", "independent"))
	deps2 := NewDependencies(cfg, newMemoryStorage(t), log.WithField("test", "independent"))

	if deps1 == deps2 {
		t.Error("NewDependencies should create independent instances")
	}

	if deps1.Storage == deps2.Storage {
		t.Error("storage sets should be independent")
	}
}

func TestCloseKafka_Nil(_ *testing.T) {
	// Не должно паниковать.
	closeKafka(nil, log.WithField("test", "kafka-close"))
}
