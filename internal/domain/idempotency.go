package domain

import "time"

// IdempotencyStatus состояние обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing запрос принят, ответа ещё нет.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone ответ сохранён и переигрывается на повторах.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed обработка упала, ключ можно переиспользовать.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid отсекает неизвестные статусы на границе хранилища.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	}
	return false
}

// IdempotencyRecord привязывает ключ к хэшу запроса и сохранённому ответу.
// Повтор с тем же ключом и хэшем получает сохранённый ответ, повтор с другим
// хэшем отклоняется.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
