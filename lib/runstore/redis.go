// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/conveyor-foundation/conveyor/lib/codec"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Redis is a Store backed by a Redis server. Mappings are stored as
// CBOR under per-step keys, with a per-run index set so Delete can
// drop a whole run without scanning.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. The default is "conveyor:run:".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL sets an expiration on published mappings. Zero, the
// default, keeps them until Delete. Runs that outlive the TTL lose
// their mappings, so set it well above the longest expected run.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis connects to the given address and returns a Redis store.
func NewRedis(address, password string, db int, opts ...RedisOption) *Redis {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(client, opts...)
}

// NewRedisFromClient wraps an existing client. The caller keeps
// ownership of the client unless it lets Close release it.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	store := &Redis{
		client: client,
		prefix: "conveyor:run:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (r *Redis) stepKey(runID, stepID string) string {
	return r.prefix + runID + ":step:" + stepID
}

func (r *Redis) indexKey(runID string) string {
	return r.prefix + runID + ":index"
}

// Publish implements Store. Write-once is enforced with SET NX, so
// concurrent publishers race safely: exactly one wins.
func (r *Redis) Publish(ctx context.Context, runID, stepID string, mapping settings.Settings) error {
	data, err := codec.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}

	stored, err := r.client.SetNX(ctx, r.stepKey(runID, stepID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("publishing mapping: %w", err)
	}
	if !stored {
		return fmt.Errorf("%w: run %q step %q", ErrAlreadyPublished, runID, stepID)
	}

	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, r.indexKey(runID), stepID)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.indexKey(runID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("indexing mapping: %w", err)
	}
	return nil
}

// Read implements Store.
func (r *Redis) Read(ctx context.Context, runID, stepID string) (settings.Settings, error) {
	data, err := r.client.Get(ctx, r.stepKey(runID, stepID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: run %q step %q", ErrNotFound, runID, stepID)
		}
		return nil, fmt.Errorf("reading mapping: %w", err)
	}

	var mapping settings.Settings
	if err := codec.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("decoding mapping: %w", err)
	}
	return mapping, nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, runID string) error {
	stepIDs, err := r.client.SMembers(ctx, r.indexKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("listing run mappings: %w", err)
	}

	keys := make([]string, 0, len(stepIDs)+1)
	for _, stepID := range stepIDs {
		keys = append(keys, r.stepKey(runID, stepID))
	}
	keys = append(keys, r.indexKey(runID))
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting run mappings: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
