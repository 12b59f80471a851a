package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fastRetry = RetryPolicy{InitialInterval: time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 3}

func TestRetryRepeatsStorageErrors(t *testing.T) {
	calls := 0
	err := fastRetry.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &StorageError{Op: "test", Err: errors.New("deadlock detected")}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := fastRetry.Retry(context.Background(), func() error {
		calls++
		return &StorageError{Op: "test", Err: errors.New("connection reset")}
	})
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 4, calls)
}

func TestRetryStopsOnDomainErrors(t *testing.T) {
	for _, kind := range []error{ErrForbidden, ErrAlreadyDecided, ErrValidation} {
		calls := 0
		err := fastRetry.Retry(context.Background(), func() error {
			calls++
			return kind
		})
		assert.ErrorIs(t, err, kind)
		assert.Equal(t, 1, calls)
	}
}
