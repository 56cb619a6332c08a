package writer

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"github.com/mevdschee/tqbulkwriter/metrics"
	"github.com/mevdschee/tqbulkwriter/store"
)

// executor applies rendered statements to the store with bounded
// retries, classifying each failure to decide between reconnecting,
// backing off, or retrying straight away.
type executor struct {
	store             Store
	connectRetryDelay time.Duration
	contentionDelay   time.Duration
}

// execute runs stmt with at most maxRetries attempts and reports
// success. A budget of zero performs no attempts at all. A connectivity
// failure blocks in the reconnect sub-loop until the store is reachable
// again or ctx is cancelled.
func (e *executor) execute(ctx context.Context, stmt string, maxRetries int) bool {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		lastErr = e.store.Exec(ctx, stmt)
		if lastErr == nil {
			return true
		}

		kind := store.Classify(lastErr)
		metrics.RetriesTotal.WithLabelValues(kind.String()).Inc()

		switch kind {
		case store.KindConnectivity:
			log.WithError(lastErr).Warn("store connection lost, reconnecting")
			if err := e.reconnect(ctx); err != nil {
				// Shutdown cancelled the reconnect loop
				return false
			}
		case store.KindContention:
			if !sleep(ctx, e.contentionDelay) {
				return false
			}
		default:
			if attempt == maxRetries-1 {
				log.WithError(lastErr).WithField("attempt", attempt+1).
					Info("statement rejected by store")
			}
		}
	}

	if lastErr != nil {
		log.WithError(lastErr).WithField("retries", maxRetries).
			Warn("giving up on statement after max retries")
		log.WithField("statement", truncate(stmt, 200)).Debug("failed statement")
	}
	return false
}

// reconnect blocks until a fresh store connection is established,
// spacing attempts by the configured delay. Only context cancellation
// breaks the loop.
func (e *executor) reconnect(ctx context.Context) error {
	err := retry.Do(ctx, retry.NewConstant(e.connectRetryDelay), func(ctx context.Context) error {
		if err := e.store.Reconnect(ctx); err != nil {
			log.WithError(err).Warn("store reconnect failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		metrics.ReconnectsTotal.Inc()
	}
	return err
}

// sleep waits for d unless ctx is cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
