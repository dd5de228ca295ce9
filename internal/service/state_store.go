package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionStateStore 会话快照，每次状态变化后写入，进程重启后据此恢复
type SessionStateStore interface {
	Save(ctx context.Context, state SessionState) error
	Load(ctx context.Context, id string) (*SessionState, error)
	Delete(ctx context.Context, id string) error
}

const sessionKeyPrefix = "exam_prep:session:"

// RedisStateStore 快照存入 Redis 并设置过期时间
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("%s%s", sessionKeyPrefix, id)
}

func (s *RedisStateStore) Save(ctx context.Context, state SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(state.ID), data, s.ttl).Err()
}

func (s *RedisStateStore) Load(ctx context.Context, id string) (*SessionState, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

// MemoryStateStore 未启用 Redis 时使用，只在进程内有效
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]SessionState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]SessionState)}
}

func (s *MemoryStateStore) Save(ctx context.Context, state SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ID] = state.clone()
	return nil
}

func (s *MemoryStateStore) Load(ctx context.Context, id string) (*SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	if !ok {
		return nil, nil
	}
	c := state.clone()
	return &c, nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}
