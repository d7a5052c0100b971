package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// connect runs fn until it succeeds, attempts are exhausted or ctx ends,
// doubling the delay between tries.
func connect(ctx context.Context, attempts int, log zerolog.Logger, fn func(context.Context) error) error {
	attempts = max(attempts, 1)
	delay := retryBaseDelay

	var err error
	for i := 1; ; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i >= attempts {
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", i).
			Int("max_attempts", attempts).
			Dur("retry_in", delay).
			Msg("Connection failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, retryMaxDelay)
	}
}
