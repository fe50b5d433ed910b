package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/config"
	"clipforge/internal/logging"
)

const (
	mirrorQueueSize    = 256
	mirrorWriteTimeout = 2 * time.Second
)

// redisCommander is the subset of the go-redis client used by the mirror.
type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// DialRedis connects to the configured Redis server and verifies it with PING.
func DialRedis(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisMirror is a Relay that stores the latest event of every job under
// <prefix><session_id> with a TTL and publishes it on a channel. Writes
// happen on a background goroutine; when the queue is full events are
// dropped rather than stalling publishers.
type RedisMirror struct {
	client    redisCommander
	keyPrefix string
	channel   string
	ttl       time.Duration
	logger    *slog.Logger

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRedisMirror starts the mirror worker. Call Close to drain and stop it.
func NewRedisMirror(client redisCommander, cfg config.Redis, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	m := &RedisMirror{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		channel:   cfg.Channel,
		ttl:       ttl,
		logger:    logging.NewComponentLogger(logger, "redis-mirror"),
		queue:     make(chan Event, mirrorQueueSize),
		done:      make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Key returns the Redis key holding the latest event for sessionID.
func (m *RedisMirror) Key(sessionID string) string {
	return m.keyPrefix + sessionID
}

// Relay enqueues evt for mirroring.
func (m *RedisMirror) Relay(evt Event) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.queue <- evt:
	default:
		m.logger.Debug("redis mirror queue full; dropping event",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.String("kind", string(evt.Kind)),
		)
	}
}

// Close stops accepting events, flushes the queue and waits for the worker.
func (m *RedisMirror) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *RedisMirror) run() {
	defer m.wg.Done()
	for {
		select {
		case evt := <-m.queue:
			m.write(evt)
		case <-m.done:
			for {
				select {
				case evt := <-m.queue:
					m.write(evt)
				default:
					return
				}
			}
		}
	}
}

func (m *RedisMirror) write(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logging.WarnWithContext(m.logger, "redis mirror encode failed", "redis_mirror_encode_failed",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect event payload"),
			logging.String(logging.FieldImpact, "event not mirrored"),
		)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()

	if err := m.client.Set(ctx, m.Key(evt.SessionID), payload, m.ttl).Err(); err != nil {
		logging.WarnWithContext(m.logger, "redis mirror write failed", "redis_mirror_write_failed",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redis.addr and server health"),
			logging.String(logging.FieldImpact, "other replicas see stale progress"),
		)
		return
	}
	if m.channel == "" {
		return
	}
	if err := m.client.Publish(ctx, m.channel, payload).Err(); err != nil {
		logging.WarnWithContext(m.logger, "redis mirror publish failed", "redis_mirror_publish_failed",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redis.channel and server health"),
			logging.String(logging.FieldImpact, "live listeners on other replicas miss this event"),
		)
	}
}
