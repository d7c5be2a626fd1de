package writer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "binflow/config"
	"binflow/logger"
	"binflow/models"
)

// RedisSink appends each message's field mapping as one entry to a Redis
// Stream keyed by <namespace>:<stream-kind>:<symbol-lower>. Store outages
// are absorbed with a bounded retry, then the message is dropped and logged:
// at-least-once under normal operation, best-effort under sustained outage.
type RedisSink struct {
	client    *redis.Client
	namespace string
	retry     appconfig.RedisRetryConfig
	log       *logger.Log
	closeOnce sync.Once
	closeErr  error
}

// NewRedisSink connects to Redis and verifies the connection with a ping.
// A failed ping is fatal here, before any feed opens; it is never fatal
// later.
func NewRedisSink(ctx context.Context, cfg appconfig.RedisSinkConfig) (*RedisSink, error) {
	log := logger.GetLogger()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}

	log.WithComponent("redis_sink").WithFields(logger.Fields{
		"addr":      addr,
		"namespace": cfg.Namespace,
	}).Info("connected to redis")

	return &RedisSink{
		client:    client,
		namespace: cfg.Namespace,
		retry:     cfg.Retry,
		log:       log,
	}, nil
}

func (s *RedisSink) Name() string { return "redis" }

// StreamKey builds the stream name for a message.
func (s *RedisSink) StreamKey(msg models.NormalizedMessage) string {
	return fmt.Sprintf("%s:%s:%s", s.namespace, msg.Stream, strings.ToLower(msg.Symbol))
}

func (s *RedisSink) Write(ctx context.Context, msg models.NormalizedMessage) error {
	key := s.StreamKey(msg)

	values := make(map[string]interface{}, len(msg.Fields))
	for _, f := range msg.Fields {
		values[f.Name] = f.Value
	}

	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: values}).Err()
		if err == nil {
			logger.IncrementSinkWrite(s.Name(), len(msg.Fields))
			return nil
		}
		lastErr = err

		if attempt < s.retry.MaxAttempts {
			s.log.WithComponent("redis_sink").WithError(err).WithFields(logger.Fields{
				"stream":  key,
				"attempt": attempt,
			}).Warn("xadd failed, retrying")

			timer := time.NewTimer(s.retry.BaseDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.IncrementSinkDrop(s.Name())
				return fmt.Errorf("xadd to %s abandoned: %w", key, ctx.Err())
			case <-timer.C:
			}
		}
	}

	logger.IncrementSinkDrop(s.Name())
	return fmt.Errorf("xadd to %s failed after %d attempts, dropping message: %w",
		key, s.retry.MaxAttempts, lastErr)
}

func (s *RedisSink) Flush() error { return nil }

func (s *RedisSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
