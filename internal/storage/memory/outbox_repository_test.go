package memory

import (
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutbox_EnqueueAssignsID(t *testing.T) {
	repo := NewOutboxRepository()

	saved, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "OrderCreated",
		Payload:       []byte(`{"status":"pending"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("id must be generated")
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutbox_PullPreservesEnqueueOrder(t *testing.T) {
	repo := NewOutboxRepository()

	first, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderCreated"})
	second, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderStatusChanged"})
	third, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderCanceled"})

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("PullPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID || pending[2].ID != third.ID {
		t.Fatal("events came back out of order")
	}

	limited, err := repo.PullPending(2)
	if err != nil {
		t.Fatalf("PullPending limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != first.ID {
		t.Fatalf("limit not honored: %d events", len(limited))
	}
}

func TestOutbox_MarkSentRemovesFromPending(t *testing.T) {
	repo := NewOutboxRepository()

	saved, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderCreated"})
	if err := repo.MarkSent(saved.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("PullPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("sent event still pending: %d", len(pending))
	}

	stats, _ := repo.Stats()
	if stats.PendingCount != 0 {
		t.Fatalf("pending count = %d, want 0", stats.PendingCount)
	}
}

func TestOutbox_MarkUnknownID(t *testing.T) {
	repo := NewOutboxRepository()

	if err := repo.MarkSent("missing"); err == nil {
		t.Fatal("MarkSent for unknown id must fail")
	}
	if err := repo.MarkFailed("missing"); err == nil {
		t.Fatal("MarkFailed for unknown id must fail")
	}
}
