package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps measure history in one sorted set per service, scored
// by the record time in milliseconds.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects to url and pings the server.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		prefix: "dd:measures:",
		ttl:    7 * 24 * time.Hour,
	}, nil
}

// SetTTL sets how long entries are kept.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

func (rs *RedisStorage) key(service string) string {
	return rs.prefix + service
}

// Append adds e and prunes the entries older than the TTL in one pipeline.
func (rs *RedisStorage) Append(ctx context.Context, e HistoryEntry) error {
	if e.Recorded.IsZero() {
		e.Recorded = time.Now()
	}
	member, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	key := rs.key(e.Service)
	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(e.Recorded.UnixMilli()), Member: string(member)})
	cutoff := time.Now().Add(-rs.ttl).UnixMilli()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, rs.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving history entry: %w", err)
	}
	return nil
}

// Range implements History.
func (rs *RedisStorage) Range(ctx context.Context, service string, since time.Time, limit int) ([]HistoryEntry, error) {
	members, err := rs.client.ZRangeByScore(ctx, rs.key(service), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(members))
	for _, m := range members {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return tail(entries, limit), nil
}

// Delete removes the history of service.
func (rs *RedisStorage) Delete(ctx context.Context, service string) error {
	if err := rs.client.Del(ctx, rs.key(service)).Err(); err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	return nil
}

// Close closes the connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
