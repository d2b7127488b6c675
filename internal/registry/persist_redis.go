package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the subscriber set lives under.
const DefaultRedisKey = "geowarn:subscribers"

// RedisPersister stores the whole subscriber set as one JSON value.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister creates a persister writing to the given key; an empty
// key falls back to DefaultRedisKey.
func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{client: client, key: key}
}

// Save overwrites the persisted subscriber set.
func (p *RedisPersister) Save(ctx context.Context, subscribers []Subscriber) error {
	data, err := json.Marshal(subscribers)
	if err != nil {
		return fmt.Errorf("marshal subscribers: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save subscribers to redis: %w", err)
	}
	return nil
}

// Load returns the persisted subscriber set, or nil when none exists yet.
func (p *RedisPersister) Load(ctx context.Context) ([]Subscriber, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscribers from redis: %w", err)
	}
	var out []Subscriber
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal subscribers: %w", err)
	}
	return out, nil
}
