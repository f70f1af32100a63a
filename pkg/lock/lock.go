// Package lock 提供按键的互斥锁，用于保证同一指纹同时只有一个向量化任务。
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLocked 表示锁已被其他持有者占用。
var ErrLocked = errors.New("lock is held by another owner")

// Release 释放一把已获得的锁。
type Release func(ctx context.Context) error

// Locker 尝试获取锁，失败立即返回 ErrLocked，不等待。
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// releaseScript 仅当值仍是自己的令牌时才删除，避免误删过期后被他人重新获得的锁。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 实现，多个服务实例之间共享。
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "vectorize:lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err()
	}, nil
}

// LocalLocker 是进程内实现，供单实例部署、命令行工具和测试使用。
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	expires := now.Add(ttl)
	if ttl <= 0 {
		expires = now.Add(24 * time.Hour)
	}
	l.held[key] = localEntry{token: token, expires: expires}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
