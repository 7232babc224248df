package app

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// newMemoryStorage собирает in-memory набор хранилищ для тестов пакета.
func newMemoryStorage(t *testing.T) *storageSet {
	t.Helper()

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverMemory

	storage, err := initStorage(context.Background(), cfg, log.WithField("test", "storage"))
	if err != nil {
		t.Fatalf("initStorage(memory) failed: %v", err)
	}
	t.Cleanup(func() { _ = storage.close() })

	return storage
}

// newTestProduct создаёт товар для использования в тестах пакета.
func newTestProduct(id string, priceMinor int64, stock int32) domain.Product {
	now := time.Now().UTC()
	return domain.Product{
		ID:         id,
		Name:       "Test Product " + id,
		PriceMinor: priceMinor,
		Stock:      stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
