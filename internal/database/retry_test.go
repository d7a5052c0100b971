package database

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConnect_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := connect(context.Background(), 3, zerolog.Nop(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConnect_GivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	calls := 0
	err := connect(context.Background(), 1, zerolog.Nop(), func(context.Context) error {
		calls++
		return refused
	})

	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 1, calls)
}

func TestConnect_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := connect(ctx, 5, zerolog.Nop(), func(context.Context) error {
		return errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
