package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/observability"
)

// retryPolicy bounds notification attempts with exponential backoff.
type retryPolicy struct {
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
}

var defaultNotifyRetry = retryPolicy{attempts: 3, backoff: 200 * time.Millisecond, maxBackoff: 2 * time.Second}

// notifyProduct announces a committed product. Failures are logged; the
// product itself is already durable.
func notifyProduct(ctx context.Context, n domain.ProductNotifier, logger *slog.Logger, metrics *observability.Metrics, p domain.Product) {
	if n == nil {
		return
	}
	if err := notifyWithRetry(ctx, n, p, defaultNotifyRetry); err != nil {
		metrics.ProductsPublished.WithLabelValues(string(p.Kind), "error").Inc()
		logger.Warn("product notification failed", "path", p.Path, "error", err)
		return
	}
	metrics.ProductsPublished.WithLabelValues(string(p.Kind), "success").Inc()
}

func notifyWithRetry(ctx context.Context, n domain.ProductNotifier, p domain.Product, policy retryPolicy) error {
	backoff := policy.backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = n.NotifyProduct(ctx, p); err == nil {
			return nil
		}
		if attempt >= policy.attempts || !sleepWithContext(ctx, backoff) {
			return err
		}
		backoff = nextBackoff(backoff, policy.maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
