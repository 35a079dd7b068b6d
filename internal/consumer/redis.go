package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

const (
	redisPayloadField = "payload"
	redisBatchSize    = 10
	redisErrorBackoff = time.Second
)

// RedisConfig configures the Redis Streams consumer group source.
type RedisConfig struct {
	URL          string
	Stream       string
	Group        string
	Consumer     string
	BlockTimeout time.Duration
}

// RedisSource consumes a stream as a member of a consumer group. The stream
// itself is a single partition.
type RedisSource struct {
	client *redis.Client
	cfg    RedisConfig
	log    logger.Logger
}

// NewRedisSource parses the URL and connects lazily.
func NewRedisSource(cfg RedisConfig, log logger.Logger) (*RedisSource, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisSource(redis.NewClient(opts), cfg, log), nil
}

func newRedisSource(client *redis.Client, cfg RedisConfig, log logger.Logger) *RedisSource {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &RedisSource{client: client, cfg: cfg, log: logger.Ensure(log)}
}

func (r *RedisSource) Name() string { return "redis" }

// ensureGroup creates the consumer group and the stream if needed.
func (r *RedisSource) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Consume reads new entries for this consumer until ctx is done.
func (r *RedisSource) Consume(ctx context.Context, sink Sink) error {
	if err := r.ensureGroup(ctx); err != nil {
		return err
	}
	r.log.InfoObj("redis consumer started", "consumer", map[string]any{
		"stream":   r.cfg.Stream,
		"group":    r.cfg.Group,
		"consumer": r.cfg.Consumer,
	})

	if n, err := r.reclaimPending(ctx, sink); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.log.WarnObj("redis pending reclaim failed", "consumer_error", map[string]any{
			"stream": r.cfg.Stream,
			"error":  err.Error(),
		})
	} else if n > 0 {
		r.log.InfoObj("redelivered pending entries", "consumer_reclaim", map[string]any{
			"stream":   r.cfg.Stream,
			"consumer": r.cfg.Consumer,
			"count":    n,
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := r.readOnce(ctx, sink); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.ErrorObj("redis read failed", "consumer_error", map[string]any{
				"stream": r.cfg.Stream,
				"error":  err.Error(),
			})
			timer := time.NewTimer(redisErrorBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// reclaimPending redelivers the entries this consumer read in an earlier run
// but never acked: handler failures and crashes mid-message. Entries that fail
// again stay pending until the next start.
func (r *RedisSource) reclaimPending(ctx context.Context, sink Sink) (int, error) {
	total := 0
	cursor := "0"
	for {
		n, last, err := r.read(ctx, sink, cursor, -1)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		cursor = last
	}
}

// readOnce performs one blocking XREADGROUP for new entries and submits what it got.
func (r *RedisSource) readOnce(ctx context.Context, sink Sink) (int, error) {
	n, _, err := r.read(ctx, sink, ">", r.cfg.BlockTimeout)
	return n, err
}

// read fetches entries after id. A negative block leaves BLOCK out.
func (r *RedisSource) read(ctx context.Context, sink Sink, id string, block time.Duration) (int, string, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		Streams:  []string{r.cfg.Stream, id},
		Count:    redisBatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}

	n := 0
	last := ""
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			id := entry.ID
			payload, _ := entry.Values[redisPayloadField].(string)
			msg := NewMessage(r.Name(), stream.Stream, id, []byte(payload),
				func(ctx context.Context) error {
					return r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, id).Err()
				},
				// unacked entries stay in the pending list
				nil,
			)
			if err := sink.Submit(ctx, msg); err != nil {
				return n, last, err
			}
			n++
			last = id
		}
	}
	return n, last, nil
}

func (r *RedisSource) Close() error { return r.client.Close() }
