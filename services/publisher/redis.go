package publisher

import (
	"context"
	"encoding/base64"
	"strconv"

	perrors "pokequant/priceworker/pkg/errors"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// MessageField is the stream entry field carrying the base64 JSON payload
const MessageField = "b64_series"

// RedisPublisher implements Publisher using Redis streams
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if streamCount < 1 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
	}
}

// Ping checks the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return perrors.NewPublisher("redis", "ping failed", err)
	}
	return nil
}

// StreamFor returns the stream an item key is published to. A key always
// maps to the same stream so its updates stay ordered for consumers.
func (p *RedisPublisher) StreamFor(key string) string {
	n := xxhash.Sum64String(key) % uint64(p.streamCount)
	return p.streamPrefix + ":" + strconv.FormatUint(n, 10)
}

// Publish publishes a message to a Redis stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, key string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.StreamFor(key),
		Values: map[string]interface{}{
			"key":        key,
			MessageField: encodedMessage,
		},
	}).Err()
	if err != nil {
		return perrors.NewPublisher("redis", "xadd "+key, err)
	}
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	for i := 0; i < p.streamCount; i++ {
		stream := p.streamPrefix + ":" + strconv.Itoa(i)
		err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Err()
		if err != nil && err != redis.Nil {
			return perrors.NewPublisher("redis", "trim "+stream, err)
		}
	}

	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
