package rest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// withIdempotency выполняет run под контрактом Idempotency-Key: успешные и
// неуспешные ответы кешируются и повторяются при повторной доставке ключа,
// повторное использование ключа с другим телом — 409. Без заголовка (или без
// репозитория) запрос выполняется напрямую.
func (s *Server) withIdempotency(c echo.Context, scope string, payload []byte, run func() (int, interface{})) error {
	key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
	if key == "" || s.idemRepo == nil {
		status, body := run()
		return c.JSON(status, body)
	}

	requestHash := buildRequestHash(scope, payload)

	record, err := s.idemRepo.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		return s.replayIdempotency(c, key, record, err)
	}

	status, body := run()
	data, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		s.logger.WithError(marshalErr).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
		return c.JSON(status, body)
	}

	if status < http.StatusBadRequest {
		if cacheErr := s.idemRepo.MarkDone(key, data, status); cacheErr != nil {
			s.logger.WithError(cacheErr).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
		}
	} else {
		if cacheErr := s.idemRepo.MarkFailed(key, data, status); cacheErr != nil {
			s.logger.WithError(cacheErr).WithField("idempotency_key", key).Warn("failed to store idempotent failure response")
		}
	}

	return c.JSONBlob(status, data)
}

func (s *Server) replayIdempotency(c echo.Context, key string, record domain.IdempotencyRecord, createErr error) error {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error: "idempotency key is already used with different request payload",
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "idempotency cache is empty"})
			}
			return c.JSONBlob(record.HTTPStatus, record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error: "request with the same idempotency key is already processing",
			})
		default:
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "unknown idempotency record status"})
		}
	default:
		s.logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to initialize idempotent request"})
	}
}

func buildRequestHash(scope string, payload []byte) string {
	data := make([]byte, 0, len(scope)+1+len(payload))
	data = append(data, scope...)
	data = append(data, ':')
	data = append(data, payload...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
