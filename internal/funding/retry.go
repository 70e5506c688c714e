package funding

import (
	"context"
	"errors"
	"time"

	"github.com/sofico/sofico_wallet/internal/ledger"
)

const maxBackoff = time.Second

// retryOnConflict runs fn until it returns something other than ledger.ErrConflict or the
// attempt budget is spent. The delay doubles after each conflict. It returns the number of
// attempts made.
func retryOnConflict(ctx context.Context, attempts int, base time.Duration, onConflict func(attempt int), fn func() error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if !errors.Is(err, ledger.ErrConflict) {
			return attempt, err
		}
		if onConflict != nil {
			onConflict(attempt)
		}
		if attempt == attempts {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, errors.Join(err, ctx.Err())
			case <-timer.C:
			}
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
	}
	return attempts, err
}
