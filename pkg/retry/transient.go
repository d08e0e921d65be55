package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const transientMaxElapsed = 2 * time.Second

// newTransientBackoff returns a fresh instance; BackOff values are stateful.
func newTransientBackoff(maxElapsed time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// IsTransient reports whether a storage error is worth retrying right away.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"driver: bad connection",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Transient runs op and retries it with exponential backoff while it fails
// with a transient error. Other errors are returned immediately.
func Transient(ctx context.Context, op func() error) error {
	return TransientWithin(ctx, transientMaxElapsed, op)
}

// TransientWithin is Transient with a custom retry window.
func TransientWithin(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	err := backoff.Retry(func() error {
		err := op()
		if err != nil && IsTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newTransientBackoff(maxElapsed), ctx))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
