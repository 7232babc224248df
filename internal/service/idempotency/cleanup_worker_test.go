package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type fakeCleanupRepo struct {
	mu      sync.Mutex
	batches []int
	errs    []error
	rounds  int
}

var _ domain.IdempotencyRepository = (*fakeCleanupRepo)(nil)

func (r *fakeCleanupRepo) CreateProcessing(string, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not used in cleanup tests")
}

func (r *fakeCleanupRepo) Get(string) (domain.IdempotencyRecord, error) {
	panic("not used in cleanup tests")
}

func (r *fakeCleanupRepo) MarkDone(string, []byte, int) error {
	panic("not used in cleanup tests")
}

func (r *fakeCleanupRepo) MarkFailed(string, []byte, int) error {
	panic("not used in cleanup tests")
}

func (r *fakeCleanupRepo) DeleteExpired(_ time.Time, _ int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rounds++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(r.batches) == 0 {
		return 0, nil
	}
	n := r.batches[0]
	r.batches = r.batches[1:]
	return n, nil
}

func (r *fakeCleanupRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds
}

func TestDeleteExpired_DrainsInBatches(t *testing.T) {
	t.Parallel()

	// Два полных батча по 2 и хвост из 1 записи.
	repo := &fakeCleanupRepo{batches: []int{2, 2, 1}}
	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("deleted = %d, want 5", deleted)
	}
	if repo.calls() != 3 {
		t.Fatalf("repo calls = %d, want 3", repo.calls())
	}
}

func TestDeleteExpired_ShortBatchStops(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{batches: []int{3}}
	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("deleted = %d, want 3", deleted)
	}
	if repo.calls() != 1 {
		t.Fatalf("repo calls = %d, want 1", repo.calls())
	}
}

func TestDeleteExpired_RepoErrorSurfaces(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{errs: []error{errors.New("boom")}}
	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected repo error")
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
}

func TestDeleteExpired_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := NewCleanupWorker(&fakeCleanupRepo{batches: []int{1}})
	if _, err := worker.DeleteExpired(ctx, time.Now().UTC()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{}
	worker := NewCleanupWorker(repo,
		WithInterval(5*time.Millisecond),
		WithBatchSize(10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	if repo.calls() == 0 {
		t.Fatal("cleanup never ran")
	}
}

func TestRun_DisabledWithoutRepo(t *testing.T) {
	t.Parallel()

	worker := NewCleanupWorker(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without repo must return immediately")
	}
}
