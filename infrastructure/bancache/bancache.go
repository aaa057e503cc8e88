// Package bancache remembers, per day, the users whose callbacks are ignored
// because they exceeded the daily vote cap.
package bancache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/redis/go-redis/v9"
)

// Memory is a process local cache. Entries of other days are dropped when a
// new day is banned.
type Memory struct {
	mu     sync.RWMutex
	day    string
	banned map[string]bool
}

var _ services.BanCache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{banned: map[string]bool{}}
}

func (m *Memory) IsBanned(ctx context.Context, userID string, day string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.day == day && m.banned[userID], nil
}

func (m *Memory) Ban(ctx context.Context, userID string, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.day != day {
		m.day = day
		m.banned = map[string]bool{}
	}
	m.banned[userID] = true
	return nil
}

const (
	keyPrefix = "paul:ban:"
	// banTTL outlives the day in every timezone.
	banTTL = 48 * time.Hour
)

// Client is the part of the go-redis client the cache uses.
type Client interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis shares bans between processes.
type Redis struct {
	client Client
}

var _ services.BanCache = (*Redis)(nil)

func NewRedis(client Client) *Redis {
	return &Redis{client: client}
}

// OpenRedis connects to the redis server at url, such as
// redis://localhost:6379/0.
func OpenRedis(url string) (*Redis, *redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	client := redis.NewClient(opt)
	return NewRedis(client), client, nil
}

func key(userID string, day string) string {
	return keyPrefix + day + ":" + userID
}

func (r *Redis) IsBanned(ctx context.Context, userID string, day string) (bool, error) {
	n, err := r.client.Exists(ctx, key(userID, day)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Ban(ctx context.Context, userID string, day string) error {
	return r.client.Set(ctx, key(userID, day), 1, banTTL).Err()
}
