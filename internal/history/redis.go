// Package history stores answered exchanges per session so follow-up
// questions can refer to earlier answers.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tourguide/internal/domain"
)

const (
	defaultKeyPrefix = "tourguide:history:"
	defaultMaxLen    = 50
	defaultTTL       = 24 * time.Hour
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// MaxLen caps the stored exchanges per session.
	MaxLen int
	TTL    time.Duration
	// RetryFor bounds write retries. Zero disables retrying.
	RetryFor time.Duration
}

// RedisLog implements ports.ConversationLog on a capped Redis list per session.
type RedisLog struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisLog connects and pings the server, retrying until ctx ends or
// RetryFor elapses.
func NewRedisLog(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log := newRedisLog(client, cfg, logger)

	err := log.retry(ctx, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return log, nil
}

func newRedisLog(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMaxLen
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &RedisLog{client: client, cfg: cfg, logger: logger.Named("history")}
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}

func (l *RedisLog) Append(ctx context.Context, sessionID string, exchange domain.Exchange) error {
	payload, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}
	key := l.key(sessionID)

	return l.retry(ctx, func() error {
		pipe := l.client.TxPipeline()
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-l.cfg.MaxLen), -1)
		pipe.Expire(ctx, key, l.cfg.TTL)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (l *RedisLog) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}
	values, err := l.client.LRange(ctx, l.key(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	exchanges := make([]domain.Exchange, 0, len(values))
	for _, value := range values {
		var exchange domain.Exchange
		if err := json.Unmarshal([]byte(value), &exchange); err != nil {
			l.logger.Warn("skipping undecodable history entry", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		exchanges = append(exchanges, exchange)
	}
	return exchanges, nil
}

func (l *RedisLog) key(sessionID string) string {
	return l.cfg.KeyPrefix + sessionID
}

func (l *RedisLog) retry(ctx context.Context, op func() error) error {
	if l.cfg.RetryFor <= 0 {
		return op()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = l.cfg.RetryFor

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && attempt > 1 {
			l.logger.Debug("redis retry failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
