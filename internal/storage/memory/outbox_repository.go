package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type outboxStatus string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    outboxStatus
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// outboxQueue in-memory реализация transactional outbox. Порядок выдачи
// совпадает с порядком постановки.
type outboxQueue struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*outboxEntry
}

var _ domain.OutboxRepository = (*outboxQueue)(nil)

// NewOutboxRepository создаёт in-memory outbox.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxQueue{entries: make(map[string]*outboxEntry)}
}

func (q *outboxQueue) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	q.entries[msg.ID] = &outboxEntry{
		msg:       msg,
		status:    outboxPending,
		createdAt: now,
		updatedAt: now,
	}
	q.order = append(q.order, msg.ID)
	return msg, nil
}

func (q *outboxQueue) PullPending(limit int) ([]domain.OutboxMessage, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	pending := make([]domain.OutboxMessage, 0, limit)
	for _, id := range q.order {
		entry := q.entries[id]
		if entry.status != outboxPending {
			continue
		}
		pending = append(pending, entry.msg)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (q *outboxQueue) MarkSent(id string) error {
	return q.setStatus(id, outboxSent)
}

func (q *outboxQueue) MarkFailed(id string) error {
	return q.setStatus(id, outboxFailed)
}

func (q *outboxQueue) setStatus(id string, status outboxStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.status = status
	entry.attempts++
	entry.updatedAt = time.Now().UTC()
	return nil
}

func (q *outboxQueue) Stats() (domain.OutboxStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats domain.OutboxStats
	for _, id := range q.order {
		entry := q.entries[id]
		if entry.status != outboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || entry.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = entry.createdAt
		}
	}
	return stats, nil
}
