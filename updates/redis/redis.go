// Package redis provides a Redis-backed implementation of updates.Store.
// Each update is stored as a JSON value under its own key and an index set
// tracks the known ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/inspector-proxy-go/updates"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is used when Config.KeyPrefix is empty.
const DefaultKeyPrefix = "inspector:updates:"

// maxWatchRetries bounds optimistic-lock retries in MarkAccessed.
const maxWatchRetries = 3

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance. The store takes ownership and
	// closes it in Close.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "inspector:updates:"
	KeyPrefix string
}

// Store implements updates.Store using Redis
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ updates.Store = (*Store)(nil)

// New creates a new Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

func (s *Store) updateKey(id string) string { return s.keyPrefix + "update:" + id }
func (s *Store) indexKey() string          { return s.keyPrefix + "index" }

// List returns every indexed update. Index entries whose value has vanished
// are pruned on the way.
func (s *Store) List(ctx context.Context) ([]updates.Update, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read update index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.updateKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read updates: %w", err)
	}

	out := make([]updates.Update, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var u updates.Update
		if err := json.Unmarshal([]byte(str), &u); err != nil {
			return nil, fmt.Errorf("failed to unmarshal update %s: %w", ids[i], err)
		}
		out = append(out, u)
	}

	if len(stale) > 0 {
		// Best effort; a concurrent Put may have re-added one of them.
		_ = s.client.SRem(ctx, s.indexKey(), stale...).Err()
	}

	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*updates.Update, error) {
	data, err := s.client.Get(ctx, s.updateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get update %s: %w", id, err)
	}

	var u updates.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal update %s: %w", id, err)
	}
	return &u, nil
}

func (s *Store) Put(ctx context.Context, u updates.Update) error {
	if u.ID == "" {
		return updates.ErrInvalidID
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.updateKey(u.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), u.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put update %s: %w", u.ID, err)
	}
	return nil
}

// MarkAccessed rewrites the update under WATCH so concurrent writers do not
// lose each other's changes.
func (s *Store) MarkAccessed(ctx context.Context, id string, at time.Time) error {
	key := s.updateKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return updates.ErrNotFound
			}
			return err
		}
		var u updates.Update
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("failed to unmarshal update %s: %w", id, err)
		}
		u.LastAccessed = at
		out, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal update: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, updates.ErrNotFound) {
			return fmt.Errorf("failed to mark update %s accessed: %w", id, err)
		}
		return err
	}
	return fmt.Errorf("failed to mark update %s accessed: %w", id, redis.TxFailedErr)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.updateKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete update %s: %w", id, err)
	}
	if del.Val() == 0 {
		return updates.ErrNotFound
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
