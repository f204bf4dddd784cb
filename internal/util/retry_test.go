package util

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryOnLock(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryNonRetryableError(t *testing.T) {
	sentinel := errors.New("constraint violation")
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return sentinel
	})
	// Errors other than lock contention are returned immediately, and the
	// sentinel stays matchable.
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, attempts)
}

func TestIsDatabaseLocked(t *testing.T) {
	assert.True(t, IsDatabaseLocked(errors.New("sqlite: database is locked (5)")))
	assert.False(t, IsDatabaseLocked(errors.New("no such table")))
	assert.False(t, IsDatabaseLocked(nil))
}
