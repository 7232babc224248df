package domain

import "testing"

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []IdempotencyStatus{
		IdempotencyStatusProcessing,
		IdempotencyStatusDone,
		IdempotencyStatusFailed,
	} {
		if !status.Valid() {
			t.Errorf("status %q must be valid", status)
		}
	}

	for _, status := range []IdempotencyStatus{"", "pending", "DONE"} {
		if status.Valid() {
			t.Errorf("status %q must be invalid", status)
		}
	}
}
