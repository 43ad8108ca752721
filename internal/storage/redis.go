// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCommander abstracts the minimal surface RedisKeyValueStore needs
// from a Redis client, so tests and the logging demo client can stand in
// for github.com/redis/go-redis/v9 without a live server.
type RedisCommander interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
}

// GoRedisCommander is a production RedisCommander backed by
// github.com/redis/go-redis/v9. Construct with NewGoRedisCommander.
type GoRedisCommander struct{ c *redis.Client }

// NewGoRedisCommander dials addr (e.g. "127.0.0.1:6379") lazily; go-redis
// connects on first command.
func NewGoRedisCommander(addr string) *GoRedisCommander {
	return &GoRedisCommander{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisCommander) Get(ctx context.Context, key string) (string, error) {
	v, err := g.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (g *GoRedisCommander) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.c.Set(ctx, key, value, ttl).Err()
}

func (g *GoRedisCommander) Del(ctx context.Context, keys ...string) error {
	return g.c.Del(ctx, keys...).Err()
}

func (g *GoRedisCommander) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// LoggingRedisCommander is a dependency-free demo stand-in that logs every
// call instead of talking to a server. Not for production use.
type LoggingRedisCommander struct {
	log func(format string, args ...any)
}

func NewLoggingRedisCommander(log func(format string, args ...any)) *LoggingRedisCommander {
	if log == nil {
		log = func(string, ...any) {}
	}
	return &LoggingRedisCommander{log: log}
}

func (l *LoggingRedisCommander) Get(_ context.Context, key string) (string, error) {
	l.log("[redis-demo] GET %s", key)
	return "", nil
}

func (l *LoggingRedisCommander) Set(_ context.Context, key, value string, ttl time.Duration) error {
	l.log("[redis-demo] SET %s (len=%d) ttl=%s", key, len(value), ttl)
	return nil
}

func (l *LoggingRedisCommander) Del(_ context.Context, keys ...string) error {
	l.log("[redis-demo] DEL %v", keys)
	return nil
}

func (l *LoggingRedisCommander) Eval(_ context.Context, script string, keys []string, args ...any) (any, error) {
	l.log("[redis-demo] EVAL script(len=%d) KEYS=%v ARGS=%v", len(script), keys, args)
	return int64(1), nil
}

func redisValueKey(key string) string { return fmt.Sprintf("crawlcore:kv:%s", key) }
func redisCommitMarkerKey(key, commitID string) string {
	return fmt.Sprintf("crawlcore:commit:%s:%s", key, commitID)
}

type redisEnvelope struct {
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
}

// RedisKeyValueStore is a durable contract.KeyValueStore over Redis,
// storing each value as a small JSON envelope under one string key per
// logical key.
type RedisKeyValueStore struct {
	client RedisCommander
	ttl    time.Duration
}

// NewRedisKeyValueStore returns a store using client, with ttl applied to
// every SetValue write and to CommitBatch's commit markers; values written
// by CommitBatch carry no expiry (0 disables expiry).
func NewRedisKeyValueStore(client RedisCommander, ttl time.Duration) *RedisKeyValueStore {
	return &RedisKeyValueStore{client: client, ttl: ttl}
}

func (s *RedisKeyValueStore) GetValue(ctx context.Context, key string) ([]byte, string, bool, error) {
	raw, err := s.client.Get(ctx, redisValueKey(key))
	if err != nil {
		return nil, "", false, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	if raw == "" {
		return nil, "", false, nil
	}
	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, "", false, fmt.Errorf("storage: redis decode %s: %w", key, err)
	}
	return env.Content, env.ContentType, true, nil
}

func (s *RedisKeyValueStore) SetValue(ctx context.Context, key string, content []byte, contentType string) error {
	b, err := json.Marshal(redisEnvelope{Content: content, ContentType: contentType})
	if err != nil {
		return fmt.Errorf("storage: redis encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisValueKey(key), string(b), s.ttl); err != nil {
		return fmt.Errorf("storage: redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisKeyValueStore) DeleteValue(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisValueKey(key)); err != nil {
		return fmt.Errorf("storage: redis del %s: %w", key, err)
	}
	return nil
}

// IterateKeys is not supported over a bare GET/SET/DEL/EVAL surface
// without a SCAN command; Redis-backed stores are expected to be used
// where callers already know their keys (the locked use_state slot, a
// known dataset id), matching how the teacher's RedisPersister never
// enumerates keys either.
func (s *RedisKeyValueStore) IterateKeys(context.Context, func(key string) bool) error {
	return errors.New("storage: RedisKeyValueStore does not support IterateKeys")
}

func (s *RedisKeyValueStore) GetAutoSavedValue(ctx context.Context, key string, defaultValue map[string]any) (map[string]any, error) {
	content, _, found, err := s.GetValue(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return cloneItem(defaultValue), nil
	}
	var v map[string]any
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("storage: redis decode autosaved %s: %w", key, err)
	}
	return v, nil
}

// PersistAutoSavedValues is a no-op: RedisKeyValueStore has no in-memory
// autosave buffer to flush, unlike MemoryKeyValueStore. Callers persist an
// autosaved value by calling SetValue explicitly, or through
// internal/storage's IdemShim, which writes it via CommitBatch under a
// fresh commit id.
func (s *RedisKeyValueStore) PersistAutoSavedValues(context.Context) error {
	return nil
}

// Drop is unsupported for the same reason as IterateKeys: without a SCAN
// command this store cannot enumerate its own keys to delete them.
func (s *RedisKeyValueStore) Drop(context.Context) error {
	return errors.New("storage: RedisKeyValueStore does not support Drop")
}

// redisIdemScript applies a key/value write idempotently using a Lua
// script: SETNX the commit marker, and only SET the value if the marker
// was not already present, exactly mirroring the teacher's counter
// SETNX+HINCRBY+EXPIRE idempotency pattern adapted from scalar deltas to
// whole-value writes.
const redisIdemScript = `
local valueKey = KEYS[1]
local markerKey = KEYS[2]
local value = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('SET', valueKey, value)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// CommitBatch implements Committer, applying each entry's value write
// exactly once per CommitID even if the batch is retried.
func (s *RedisKeyValueStore) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("storage: CommitEntry.CommitID must be set")
		}
		env, err := json.Marshal(redisEnvelope{Content: e.Value, ContentType: e.ContentType})
		if err != nil {
			return fmt.Errorf("storage: redis encode commit %s: %w", e.Key, err)
		}
		keys := []string{redisValueKey(e.Key), redisCommitMarkerKey(e.Key, e.CommitID)}
		args := []any{string(env), int(s.ttl.Seconds())}
		if _, err := s.client.Eval(ctx, redisIdemScript, keys, args...); err != nil {
			return fmt.Errorf("storage: redis eval key=%s commit=%s: %w", e.Key, e.CommitID, err)
		}
	}
	return nil
}
