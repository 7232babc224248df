package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineLog держит историю заказов в памяти. Годится для разработки
// и тестов, после рестарта история теряется.
type timelineLog struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineLog{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append дописывает событие, сохраняя сортировку по времени Occurred.
func (l *timelineLog) Append(event domain.TimelineEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.byOrder[event.OrderID]
	at := sort.Search(len(history), func(i int) bool {
		return history[i].Occurred.After(event.Occurred)
	})

	history = append(history, domain.TimelineEvent{})
	copy(history[at+1:], history[at:])
	history[at] = event
	l.byOrder[event.OrderID] = history

	return nil
}

// List возвращает копию истории заказа в хронологическом порядке.
func (l *timelineLog) List(orderID string) ([]domain.TimelineEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byOrder[orderID]
	out := make([]domain.TimelineEvent, len(history))
	copy(out, history)
	return out, nil
}

var _ domain.TimelineRepository = (*timelineLog)(nil)
