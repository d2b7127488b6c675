package sighting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the snapshot lives under when none is configured.
const DefaultRedisKey = "geowarn:sightings"

// RedisPersister stores the whole log as one JSON value. The log is bounded
// at a couple hundred entries, so whole-snapshot writes stay cheap and keep
// restart rehydration a single read.
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

// Save overwrites the persisted snapshot.
func (p *RedisPersister) Save(ctx context.Context, sightings []Sighting) error {
	data, err := json.Marshal(sightings)
	if err != nil {
		return fmt.Errorf("marshal sightings: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save sightings to redis: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot, or nil when none exists yet.
func (p *RedisPersister) Load(ctx context.Context) ([]Sighting, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sightings from redis: %w", err)
	}
	var out []Sighting
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal sightings: %w", err)
	}
	return out, nil
}
