package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestIdempotencyRepository_Postgres_ProcessingToDone(t *testing.T) {
	repo := NewIdempotencyRepository(testStore(t))

	expiresAt := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing("idem-done", "req-hash-1", expiresAt)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	require.Empty(t, created.ResponseBody)

	require.NoError(t, repo.MarkDone("idem-done", []byte(`{"result":"ok"}`), 200))

	got, err := repo.Get("idem-done")
	require.NoError(t, err)
	require.Equal(t, "req-hash-1", got.RequestHash)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 200, got.HTTPStatus)
	require.JSONEq(t, `{"result":"ok"}`, string(got.ResponseBody))
	require.True(t, got.ExpiresAt.Equal(expiresAt), "expiry mismatch: want %s, got %s", expiresAt, got.ExpiresAt)
}

func TestIdempotencyRepository_Postgres_FailedBranchAndMissingKey(t *testing.T) {
	repo := NewIdempotencyRepository(testStore(t))

	_, err := repo.CreateProcessing("idem-fail", "req-hash-f", time.Time{})
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed("idem-fail", []byte(`{"error":"payment_declined"}`), 402))

	got, err := repo.Get("idem-fail")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Equal(t, 402, got.HTTPStatus)
	// Пустой expiresAt заполняется дефолтным TTL.
	require.False(t, got.ExpiresAt.IsZero())

	require.ErrorIs(t, repo.MarkDone("idem-missing", nil, 200), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("idem-missing")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_Postgres_DuplicateKey(t *testing.T) {
	repo := NewIdempotencyRepository(testStore(t))

	expiresAt := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing("idem-dup", "req-hash-a", expiresAt)
	require.NoError(t, err)

	// Тот же ключ и хэш — повтор запроса.
	existing, err := repo.CreateProcessing("idem-dup", "req-hash-a", expiresAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, "req-hash-a", existing.RequestHash)

	// Тот же ключ с другим телом — конфликт.
	_, err = repo.CreateProcessing("idem-dup", "req-hash-b", expiresAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_Postgres_DeleteExpiredInBatches(t *testing.T) {
	repo := NewIdempotencyRepository(testStore(t))

	now := time.Now().UTC()
	for i, key := range []string{"idem-exp-1", "idem-exp-2", "idem-exp-3"} {
		_, err := repo.CreateProcessing(key, "hash", now.Add(-time.Duration(5-i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing("idem-live", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get("idem-live")
	require.NoError(t, err)
}
