package publishers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

const defaultPublishTimeout = 10 * time.Second

// ResultFunc observes the outcome of one fan-out.
type ResultFunc func(delivered int, err error)

// AsyncNotifier publishes ingest events off the caller's goroutine using a bounded pool.
type AsyncNotifier struct {
	fanout   *Fanout
	pool     *ants.Pool
	timeout  time.Duration
	onResult ResultFunc
	log      logger.Logger
	now      func() time.Time
}

// NotifierOption customizes an AsyncNotifier.
type NotifierOption func(*AsyncNotifier)

// WithPublishTimeout bounds each fan-out.
func WithPublishTimeout(d time.Duration) NotifierOption {
	return func(n *AsyncNotifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithResultFunc registers a callback invoked after every fan-out.
func WithResultFunc(fn ResultFunc) NotifierOption {
	return func(n *AsyncNotifier) { n.onResult = fn }
}

// NewAsyncNotifier creates a notifier backed by a pool of size workers.
// Submissions beyond the pool capacity are dropped rather than blocking ingestion.
func NewAsyncNotifier(fanout *Fanout, size int, log logger.Logger, opts ...NotifierOption) (*AsyncNotifier, error) {
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create notifier pool: %w", err)
	}

	n := &AsyncNotifier{
		fanout:  fanout,
		pool:    pool,
		timeout: defaultPublishTimeout,
		log:     logger.Ensure(log),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify schedules an ingest event for every configured publisher.
func (n *AsyncNotifier) Notify(ctx context.Context, article domain.Article, origin domain.Origin) {
	if n == nil || n.fanout.Size() == 0 {
		return
	}

	evt := NewEvent(article, origin, n.now())
	base := context.WithoutCancel(ctx)
	err := n.pool.Submit(func() {
		pubCtx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()

		delivered, err := n.fanout.Publish(pubCtx, evt)
		if err != nil {
			n.log.WarnObj("ingest event not delivered to every publisher", "notifier_error", map[string]any{
				"url":       evt.Article.URL,
				"delivered": delivered,
				"error":     err.Error(),
			})
		}
		if n.onResult != nil {
			n.onResult(delivered, err)
		}
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			n.log.WarnObj("notifier pool saturated, dropping event", "notifier_dropped", map[string]any{
				"url": evt.Article.URL,
			})
		} else {
			n.log.ErrorObj("notifier submit failed", "notifier_error", map[string]any{
				"url":   evt.Article.URL,
				"error": err.Error(),
			})
		}
		if n.onResult != nil {
			n.onResult(0, err)
		}
	}
}

// Close waits up to timeout for in-flight publishes, then closes publishers that hold resources.
func (n *AsyncNotifier) Close(timeout time.Duration) error {
	if n == nil {
		return nil
	}
	var errs []error
	if err := n.pool.ReleaseTimeout(timeout); err != nil {
		errs = append(errs, fmt.Errorf("release notifier pool: %w", err))
	}
	if err := n.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
