package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists plugin states and the admin list in a Redis
// instance, under keys namespaced by a configurable prefix — the
// backend for multi-process or multi-host Kovi deployments that want
// a shared store outside any single process's filesystem.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to a Redis instance at addr. prefix namespaces
// every key this store touches, so one Redis instance can be shared
// by other applications without collision.
func OpenRedis(addr, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "kovi"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (s *RedisStore) pluginStatesKey() string { return s.prefix + ":plugin_states" }
func (s *RedisStore) adminListKey() string    { return s.prefix + ":admin_list" }

func (s *RedisStore) LoadPluginStates(ctx context.Context) (map[string]bool, error) {
	raw, err := s.client.HGetAll(ctx, s.pluginStatesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: load plugin states: %w", err)
	}
	states := make(map[string]bool, len(raw))
	for name, v := range raw {
		states[name] = v == "1"
	}
	return states, nil
}

func (s *RedisStore) SavePluginStates(ctx context.Context, states map[string]bool) error {
	key := s.pluginStatesKey()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(states) > 0 {
		fields := make(map[string]any, len(states))
		for name, enabled := range states {
			val := "0"
			if enabled {
				val = "1"
			}
			fields[name] = val
		}
		pipe.HSet(ctx, key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save plugin states: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadAdminList(ctx context.Context) (AdminList, bool, error) {
	data, err := s.client.Get(ctx, s.adminListKey()).Bytes()
	if err == redis.Nil {
		return AdminList{}, false, nil
	}
	if err != nil {
		return AdminList{}, false, fmt.Errorf("store: load admin list: %w", err)
	}
	var list AdminList
	if err := json.Unmarshal(data, &list); err != nil {
		return AdminList{}, false, fmt.Errorf("store: unmarshal admin list: %w", err)
	}
	return list, true, nil
}

func (s *RedisStore) SaveAdminList(ctx context.Context, list AdminList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("store: marshal admin list: %w", err)
	}
	if err := s.client.Set(ctx, s.adminListKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("store: save admin list: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
