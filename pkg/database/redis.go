package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/pkg/log"
)

// RDB 是全局 Redis 客户端，用于指纹锁和 Kafka 重试计数。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端并测试连接。
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	RDB = client
	log.Infof("Redis 连接成功: %s", cfg.Addr)
	return client, nil
}
