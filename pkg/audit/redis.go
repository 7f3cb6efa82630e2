package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisOpTimeout = 5 * time.Second

// RedisLogger stores audit events in a capped Redis list, newest
// first, for teams that want run history queryable off-box.
type RedisLogger struct {
	client    *redis.Client
	key       string
	maxEvents int64
}

// RedisOptions configures a RedisLogger.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key is the list key events are pushed onto. Defaults to
	// "unifid:audit".
	Key string
	// MaxEvents caps the list length. Zero means unbounded.
	MaxEvents int64
}

// NewRedisLogger connects to Redis and verifies reachability.
func NewRedisLogger(opts RedisOptions) (*RedisLogger, error) {
	if opts.Key == "" {
		opts.Key = "unifid:audit"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to audit redis at %s: %w", opts.Addr, err)
	}

	return &RedisLogger{client: client, key: opts.Key, maxEvents: opts.MaxEvents}, nil
}

// Log pushes one event and trims the list to the configured cap.
func (l *RedisLogger) Log(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key, data)
	if l.maxEvents > 0 {
		pipe.LTrim(ctx, l.key, 0, l.maxEvents-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// Query fetches the stored events and filters client-side. The list is
// newest first; results are returned oldest first to match FileLogger.
func (l *RedisLogger) Query(filter Filter) ([]*Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading audit events: %w", err)
	}

	var events []*Event
	for i := len(raw) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(raw[i]), &event); err != nil {
			continue
		}
		if matchesFilter(&event, filter) {
			events = append(events, &event)
		}
	}
	return paginate(events, filter), nil
}

// Close closes the Redis connection.
func (l *RedisLogger) Close() error {
	return l.client.Close()
}
