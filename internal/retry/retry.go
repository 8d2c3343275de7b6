package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "tubefarm/pkg/logx"
)

// Options controls Do.
//
// MaxRetries is the total attempt budget (not "extra" attempts): MaxRetries=3
// means the operation runs at most 3 times. The delay before attempt k (k>=2)
// is Backoff * 2^(k-2).
type Options struct {
	MaxRetries int
	Backoff    time.Duration
	MaxDelay   time.Duration // 0 disables capping

	// ShouldRetry classifies errors. Defaults to Transient.
	// Errors wrapped with NoRetry always propagate immediately.
	ShouldRetry func(error) bool

	// Name shows up in logs. Log may be zero.
	Name string
	Log  logx.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = Transient
	}
	if o.Name == "" {
		o.Name = "operation"
	}
	return o
}

// Do runs op up to opt.MaxRetries times with exponential backoff between
// attempts. Non-retryable errors (per ShouldRetry, or wrapped with NoRetry)
// propagate immediately without consuming the remaining budget. After the
// budget is exhausted the last error is returned.
func Do(ctx context.Context, op func(ctx context.Context) error, opt Options) error {
	if op == nil {
		return errors.New("retry: op is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opt = opt.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opt.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 && !opt.Log.IsZero() {
				opt.Log.Info("operation recovered", logx.String("op", opt.Name), logx.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		var nr noRetryError
		if errors.As(err, &nr) {
			return nr.err
		}
		if !opt.ShouldRetry(err) {
			return err
		}
		if attempt >= opt.MaxRetries {
			break
		}

		delay := backoffDelay(opt.Backoff, attempt, opt.MaxDelay)
		if !opt.Log.IsZero() {
			opt.Log.Warn("operation failed, retrying",
				logx.String("op", opt.Name),
				logx.Int("attempt", attempt),
				logx.Int("max", opt.MaxRetries),
				logx.Duration("delay", delay),
				logx.Err(err),
			)
		}

		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ctx.Err()
		case <-tmr.C:
		}
	}

	if !opt.Log.IsZero() {
		opt.Log.Error("operation failed permanently", logx.String("op", opt.Name), logx.Int("attempts", opt.MaxRetries), logx.Err(lastErr))
	}
	return lastErr
}

// backoffDelay returns the delay before the attempt following attempt n:
// base, 2*base, 4*base, ...
func backoffDelay(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}

// NoRetry marks an error as non-retryable.
//
// Callers can wrap validation errors or other permanent failures with NoRetry
// so Do won't waste budget retrying.
//
// Example:
//
//	return retry.NoRetry(fmt.Errorf("bad request: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
