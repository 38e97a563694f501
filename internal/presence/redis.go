package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Tracker backed by a Redis hash per document, for deployments
// where several processes share presence state. Entries are JSON values; the
// per-document key expires after TTL of inactivity.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings the Redis server at redisURL.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{client: client, prefix: "presence:doc:", ttl: ttl}
}

func (r *Redis) key(documentID string) string {
	return r.prefix + documentID
}

func (r *Redis) Update(ctx context.Context, documentID, participantID, username string, cursor json.RawMessage) ([]Entry, error) {
	now := time.Now()
	entry := Entry{
		ParticipantID: participantID,
		Username:      username,
		Cursor:        cursor,
		JoinedAt:      now,
		LastActivity:  now,
	}

	// Keep the original join time on refresh.
	existing, err := r.client.HGet(ctx, r.key(documentID), participantID).Result()
	if err == nil {
		var prev Entry
		if jsonErr := json.Unmarshal([]byte(existing), &prev); jsonErr == nil {
			entry.JoinedAt = prev.JoinedAt
			if username == "" {
				entry.Username = prev.Username
			}
			if cursor == nil {
				entry.Cursor = prev.Cursor
			}
		}
	} else if err != redis.Nil {
		return nil, fmt.Errorf("read presence entry: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal presence entry: %w", err)
	}

	tx := r.client.TxPipeline()
	tx.HSet(ctx, r.key(documentID), participantID, payload)
	tx.Expire(ctx, r.key(documentID), r.ttl)
	if _, err := tx.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save presence entry: %w", err)
	}

	return r.List(ctx, documentID)
}

func (r *Redis) Remove(ctx context.Context, documentID, participantID string) error {
	if err := r.client.HDel(ctx, r.key(documentID), participantID).Err(); err != nil {
		return fmt.Errorf("remove presence entry: %w", err)
	}
	remaining, err := r.client.HLen(ctx, r.key(documentID)).Result()
	if err != nil {
		return fmt.Errorf("count presence entries: %w", err)
	}
	if remaining == 0 {
		if err := r.client.Del(ctx, r.key(documentID)).Err(); err != nil {
			return fmt.Errorf("drop presence set: %w", err)
		}
	}
	return nil
}

func (r *Redis) List(ctx context.Context, documentID string) ([]Entry, error) {
	values, err := r.client.HGetAll(ctx, r.key(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence entries: %w", err)
	}
	out := make([]Entry, 0, len(values))
	for _, raw := range values {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
