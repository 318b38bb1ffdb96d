package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/caihaoran-00/memchr/internal/apperr"
)

// retryPolicy wires cenkalti/backoff/v5's generic Retry helper to the
// transport-error classification every provider shares: only errors
// apperr.Is(err, apperr.KindTransientLLMError) are retried; a SchemaError
// or ConfigError short-circuits immediately so the Extractor can fall back
// without burning the retry budget on an unrecoverable response.
func retryPolicy(maxRetries int) []backoff.RetryOption {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 8 * time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5 // jitter <=50%

	return []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxRetries) + 1),
	}
}

func doWithRetry[T any](ctx context.Context, maxRetries int, attempt func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := attempt(ctx)
		if err != nil && !apperr.Is(err, apperr.KindTransientLLMError) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	return backoff.Retry(ctx, op, retryPolicy(maxRetries)...)
}
