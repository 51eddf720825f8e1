package optimize

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// encoded is the product of one encode attempt.
type encoded struct {
	data    []byte
	width   int
	height  int
	format  TargetFormat
	quality int
}

// attemptFunc runs one attempt. The attempt index parameterizes degrading
// strategies (lower quality, alternate format, smaller dimensions).
type attemptFunc func(ctx context.Context, attempt int) (*encoded, error)

// backoffFunc returns the delay inserted after attempt n timed out.
type backoffFunc func(attempt int) time.Duration

// progressiveDelay backs off 1s, 2s, 3s, ... between timed-out attempts.
func progressiveDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * time.Second
}

// runWithTimeout races fn against a timeout. A losing attempt is abandoned,
// not killed: the goroutine runs to completion against its canceled context
// and the result is discarded.
func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (*encoded, error)) (*encoded, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		enc *encoded
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		enc, err := fn(attemptCtx)
		done <- outcome{enc, err}
	}()

	select {
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case o := <-done:
		return o.enc, o.err
	}
}

// retryAttempts runs fn up to maxAttempts times, each raced against
// timeout. Timeouts trigger the backoff delay before the next attempt;
// other failures retry immediately. The last error is returned when every
// attempt fails.
func retryAttempts(ctx context.Context, maxAttempts int, timeout time.Duration, backoff backoffFunc, fn attemptFunc) (*encoded, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		a := attempt
		enc, err := runWithTimeout(ctx, timeout, func(c context.Context) (*encoded, error) {
			return fn(c, a)
		})
		if err == nil {
			return enc, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == maxAttempts-1 {
			break
		}
		if errors.Is(err, ErrTimeout) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
	}
	return nil, lastErr
}
